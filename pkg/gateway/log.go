package gateway

import (
	"context"
	"log/slog"
)

// LogGateway only logs tag requests. It is the dry-run gateway.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{logger: logger.With("module", "log_gateway")}
}

func (g *LogGateway) ApplyTag(ctx context.Context, req TagRequest) error {
	leadID := ""
	if req.Lead != nil {
		leadID = req.Lead.ID
	}

	g.logger.InfoContext(ctx, "dry run: tag not applied",
		"lead_id", leadID,
		"tag", req.Tag,
		"subject", req.Subject,
		"sequence_id", req.SequenceID,
		"assignment_id", req.AssignmentID,
		"step_order", req.StepOrder,
	)

	return nil
}
