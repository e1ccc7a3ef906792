package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/greds/internal/core/domain"
)

var (
	auditSince string
	auditUntil string
	auditType  string
	auditLimit int
	auditJSON  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events, newest first",
	Long: `List recorded audit events, newest first.

--since and --until take an RFC 3339 timestamp or a YYYY-MM-DD date in UTC.
--since is inclusive and --until exclusive. --type is one of ingestion,
retrieval, verification, session or checkpoint.`,
	Args: cobra.NoArgs,
	RunE: runAuditList,
}

func init() {
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "earliest event time")
	auditListCmd.Flags().StringVar(&auditUntil, "until", "", "latest event time, exclusive")
	auditListCmd.Flags().StringVarP(&auditType, "type", "t", "", "event type")
	auditListCmd.Flags().IntVarP(&auditLimit, "limit", "n", domain.DefaultAuditLimit, "maximum number of events")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "output as JSON")
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditList(cmd *cobra.Command, _ []string) error {
	if auditService == nil {
		return errors.New("audit service not configured")
	}

	filter := domain.AuditFilter{
		EventType: domain.AuditEventType(auditType),
		Limit:     auditLimit,
	}
	var err error
	if filter.Start, err = parseAuditTime("--since", auditSince); err != nil {
		return err
	}
	if filter.End, err = parseAuditTime("--until", auditUntil); err != nil {
		return err
	}

	events, err := auditService.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list audit events: %w", err)
	}

	if auditJSON {
		return printJSON(cmd, events)
	}

	if len(events) == 0 {
		cmd.Println("No audit events.")
		return nil
	}
	for i := range events {
		e := &events[i]
		line := fmt.Sprintf("%s  %-12s  %-8s  %-7s  %5dms",
			e.Timestamp.UTC().Format(time.RFC3339), e.EventType, e.Action, e.Status, e.DurationMS)
		if e.ResourceID != "" {
			line += "  " + e.ResourceID
		}
		if e.ErrorMessage != "" {
			line += "  error: " + e.ErrorMessage
		}
		cmd.Println(line)
	}
	return nil
}

// parseAuditTime accepts RFC 3339 or a bare date. Empty yields the zero time.
func parseAuditTime(flag, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not RFC 3339 or YYYY-MM-DD", domain.ErrInvalidInput, flag, value)
}
