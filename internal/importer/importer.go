// Package importer loads participant rows from an operator CSV export.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/observability"
	"github.com/moodi-org/pass-backend/internal/utils"
	"go.uber.org/zap"
)

// header aliases, first match wins
var (
	miNoColumns    = []string{"miNo", "MI", "mi"}
	nameColumns    = []string{"name", "Name"}
	emailColumns   = []string{"email", "Email"}
	collegeColumns = []string{"college"}
	phoneColumns   = []string{"phone"}
)

// SkippedRow is a CSV row left out of the import. Row numbers count the
// header as row 1.
type SkippedRow struct {
	Row    int
	Reason string
	Data   map[string]string
}

// Result summarizes one import run
type Result struct {
	Imported int
	Skipped  []SkippedRow
}

// Store persists imported profiles in a single transaction
type Store interface {
	BulkUpsert(ctx context.Context, profiles []models.ParticipantProfile) (int, error)
}

// Importer reads a participant CSV and upserts the valid rows
type Importer struct {
	store       Store
	phoneRegion string
	logger      *logging.SafeLogger
}

// New creates an importer. Phones without a country code are parsed in
// phoneRegion.
func New(store Store, phoneRegion string, logger *logging.SafeLogger) *Importer {
	if phoneRegion == "" {
		phoneRegion = utils.DefaultPhoneRegion
	}
	return &Importer{store: store, phoneRegion: phoneRegion, logger: logger}
}

// Parse reads every row, returning the valid profiles and the skipped rows
func (im *Importer) Parse(r io.Reader) ([]models.ParticipantProfile, []SkippedRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("csv is empty")
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var (
		profiles []models.ParticipantProfile
		skipped  []SkippedRow
	)
	for rowNumber := 2; ; rowNumber++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", rowNumber, err)
		}
		data := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				data[col] = strings.TrimSpace(record[i])
			}
		}

		profile, reason := im.toProfile(data, rowNumber)
		if reason != "" {
			skipped = append(skipped, SkippedRow{Row: rowNumber, Reason: reason, Data: data})
			continue
		}
		profiles = append(profiles, profile)
	}

	return profiles, skipped, nil
}

func (im *Importer) toProfile(data map[string]string, rowNumber int) (models.ParticipantProfile, string) {
	miNo := pick(data, miNoColumns)
	name := pick(data, nameColumns)
	email := utils.NormalizeEmail(pick(data, emailColumns))

	switch {
	case miNo == "":
		return models.ParticipantProfile{}, "Missing miNo"
	case email == "":
		return models.ParticipantProfile{}, "Missing email"
	case name == "":
		return models.ParticipantProfile{}, "Missing name"
	case !utils.IsValidEmail(email):
		return models.ParticipantProfile{}, "Invalid email"
	}

	phone, err := utils.NormalizePhone(pick(data, phoneColumns), im.phoneRegion)
	if err != nil {
		im.logger.Warn("unparsable phone, importing without it",
			zap.Int("row", rowNumber),
			zap.String("email", observability.MaskEmail(email)),
			zap.Error(err))
		phone = ""
	}

	return models.ParticipantProfile{
		Email:   email,
		MINo:    miNo,
		Name:    name,
		College: pick(data, collegeColumns),
		Phone:   phone,
	}, ""
}

// Import parses r and upserts the valid rows in one transaction. Nothing is
// written when no row is valid.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	profiles, skipped, err := im.Parse(r)
	if err != nil {
		return nil, err
	}

	for _, s := range skipped {
		im.logger.Warn("skipped row",
			zap.Int("row", s.Row),
			zap.String("reason", s.Reason))
	}

	result := &Result{Skipped: skipped}
	if len(profiles) == 0 {
		return result, nil
	}

	n, err := im.store.BulkUpsert(ctx, profiles)
	if err != nil {
		return nil, fmt.Errorf("import participants: %w", err)
	}
	result.Imported = n
	return result, nil
}

func pick(data map[string]string, aliases []string) string {
	for _, a := range aliases {
		if v := data[a]; v != "" {
			return v
		}
	}
	return ""
}
