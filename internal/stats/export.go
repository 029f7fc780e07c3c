package stats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	usersSheet   = "Users"
	summarySheet = "Summary"
)

// ExportXLSX writes a two-sheet workbook (per-user detail and aggregate
// summary) into the export directory and returns its path.
func (c *Collector) ExportXLSX(ctx context.Context) (string, error) {
	users, err := c.repo.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("list users: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	f.SetSheetName("Sheet1", usersSheet)

	header := []any{"User ID", "Username", "First name", "Last name",
		"Verified", "Verified at", "Registered at"}
	for _, tier := range c.tiers {
		header = append(header, tier.Name)
	}
	if err := f.SetSheetRow(usersSheet, "A1", &header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	for i, u := range users {
		sentTiers, err := c.repo.SentTiers(ctx, u.ID)
		if err != nil {
			return "", fmt.Errorf("sent tiers for %d: %w", u.ID, err)
		}

		verifiedAt := ""
		if u.SubscribedAt != nil {
			verifiedAt = u.SubscribedAt.Format("02.01.2006 15:04")
		}
		row := []any{u.ID, u.Username, u.FirstName, u.LastName,
			yesNo(u.Subscribed), verifiedAt, u.CreatedAt.Format("02.01.2006 15:04")}
		for _, tier := range c.tiers {
			row = append(row, yesNo(sentTiers[tier.Name]))
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		if err := f.SetSheetRow(usersSheet, cell, &row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := c.writeSummary(ctx, f); err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.exportDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(c.exportDir,
		fmt.Sprintf("statistics_%s.xlsx", time.Now().Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	c.log.Info("statistics exported", zap.String("path", path), zap.Int("users", len(users)))
	return path, nil
}

func (c *Collector) writeSummary(ctx context.Context, f *excelize.File) error {
	sum, err := c.Summary(ctx)
	if err != nil {
		return err
	}
	convs, err := c.Conversions(ctx)
	if err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	lastJoined := "—"
	if sum.LastJoined != nil {
		lastJoined = sum.LastJoined.Format("02.01.2006 15:04")
	}
	rows := [][]any{
		{"Metric", "Value"},
		{"Total users", sum.TotalUsers},
		{"Verified", sum.Subscribed},
		{"Unverified", sum.Unsubscribed},
		{"Verification rate", fmt.Sprintf("%.1f%%", sum.SubscribedRate)},
		{"New today", sum.Today},
		{"New this week", sum.Week},
		{"New this month", sum.Month},
		{"Last registration", lastJoined},
	}
	for _, conv := range convs {
		rows = append(rows,
			[]any{"Reminder sent: " + conv.Tier, conv.Sent},
			[]any{"Verified after: " + conv.Tier, conv.SubscribedAfter},
		)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
