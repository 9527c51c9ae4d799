package safes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// DispatchPost is the outbox handler for safe.post events. The payload is a
// PostInput. A missing safe is a permanent condition: the event is dropped
// rather than retried forever.
func (s *Service) DispatchPost(ctx context.Context, payload json.RawMessage) error {
	var input PostInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("safes: decode post event: %w", err)
	}
	_, err := s.Post(ctx, input)
	if errors.Is(err, ErrSafeNotFound) {
		// The sale already committed; a vanished safe must not hold the
		// outbox hostage.
		s.logger.Warn("safe post dropped, safe missing",
			slog.Int64("safe_id", input.SafeID),
			slog.String("reference_type", input.ReferenceType),
			slog.String("reference_id", input.ReferenceID),
			slog.Any("error", err))
		return nil
	}
	return err
}
