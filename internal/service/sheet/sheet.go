package sheet

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"registrar/internal/codec"
	"registrar/internal/model"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type SheetService struct {
	SpreadsheetID string
	SheetID       string
	SheetName     string
	PauseMs       int // pause between API calls
	VerifyBaseURL string
	srv           *sheets.Service
	limiterMu     sync.Mutex
	lastCall      time.Time
	colMap        ColumnMap
}

type Settings struct {
	SpreadsheetID string
	SheetID       string
	PauseMs       int
	VerifyBaseURL string
}

type ColumnMap map[string]int // e.g. "ID": 0, "Name": 1, ...

func NewDefaultColumnMap() ColumnMap {
	return CreateColumnMapFromOrder("ID,Name,Roll,Group,Gender,Date,Paid,Email,Phone,Parts,Size,Revoked,ReferredBy,Link")
}

// CreateColumnMapFromOrder builds a ColumnMap from a comma separated column
// order such as "ID,Name,Roll". Unknown column names produce empty cells.
func CreateColumnMapFromOrder(order string) ColumnMap {
	if strings.TrimSpace(order) == "" {
		return NewDefaultColumnMap()
	}
	m := make(ColumnMap)
	for _, field := range strings.Split(order, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if _, dup := m[field]; !dup {
			m[field] = len(m)
		}
	}
	return m
}

// CredentialsOption turns a base64 encoded service account JSON into a
// client option.
func CredentialsOption(ctx context.Context, base64Creds string) (option.ClientOption, error) {
	credBytes, err := base64.StdEncoding.DecodeString(base64Creds)
	if err != nil {
		return nil, fmt.Errorf("decode credentials from base64: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, credBytes, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials JSON: %w", err)
	}
	return option.WithCredentials(creds), nil
}

func NewSheetService(ctx context.Context, settings Settings, colMap ColumnMap, opts ...option.ClientOption) (*SheetService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init Google Sheets service: %w", err)
	}
	if len(colMap) == 0 {
		colMap = NewDefaultColumnMap()
	}

	s := &SheetService{
		SpreadsheetID: settings.SpreadsheetID,
		SheetID:       settings.SheetID,
		PauseMs:       settings.PauseMs,
		VerifyBaseURL: settings.VerifyBaseURL,
		srv:           srv,
		lastCall:      time.Now(),
		colMap:        colMap,
	}

	if err := s.fetchSheetName(ctx); err != nil {
		return nil, fmt.Errorf("resolve sheet name: %w", err)
	}
	return s, nil
}

func (s *SheetService) fetchSheetName(ctx context.Context) error {
	s.Wait()

	resp, err := s.srv.Spreadsheets.Get(s.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}

	for _, sheet := range resp.Sheets {
		if sheet.Properties != nil && fmt.Sprint(sheet.Properties.SheetId) == s.SheetID {
			s.SheetName = sheet.Properties.Title
			return nil
		}
	}
	return fmt.Errorf("sheet with id %s not found", s.SheetID)
}

// Wait blocks until PauseMs has passed since the previous call.
func (s *SheetService) Wait() {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	elapsed := time.Since(s.lastCall)
	pause := time.Duration(s.PauseMs) * time.Millisecond
	if elapsed < pause {
		time.Sleep(pause - elapsed)
	}
	s.lastCall = time.Now()
}

// WriteRoster replaces the sheet contents with a header row followed by one
// row per registrant, in roster order. The new rows are written first and
// only then is whatever lies below or to the right of them cleared, so a
// failed write leaves the previous export in place.
func (s *SheetService) WriteRoster(ctx context.Context, records []model.Registrant) error {
	rows := make([][]interface{}, 0, len(records)+1)
	rows = append(rows, s.header())
	for _, r := range records {
		rows = append(rows, s.row(r))
	}

	s.Wait()
	vr := &sheets.ValueRange{Values: rows}
	_, err := s.srv.Spreadsheets.Values.Update(s.SpreadsheetID, s.sheetRange("A1"), vr).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write roster to sheet: %w", err)
	}

	s.Wait()
	_, err = s.srv.Spreadsheets.Values.BatchClear(s.SpreadsheetID, &sheets.BatchClearValuesRequest{
		Ranges: s.trailingRanges(len(rows), len(s.colMap)),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear stale rows: %w", err)
	}
	return nil
}

// trailingRanges covers the rows below the export and the columns right of
// it.
func (s *SheetService) trailingRanges(rows, cols int) []string {
	return []string{
		s.sheetRange(fmt.Sprintf("A%d:%s", rows+1, lastColumn)),
		s.sheetRange(fmt.Sprintf("%s1:%s", columnName(cols+1), lastColumn)),
	}
}

const (
	lastColumn = "ZZZ"
	isoDate    = "2006-01-02"
)

// columnName turns a 1-based column index into its A1 letters.
func columnName(n int) string {
	var name []byte
	for n > 0 {
		n--
		name = append([]byte{byte('A' + n%26)}, name...)
		n /= 26
	}
	return string(name)
}

func (s *SheetService) sheetRange(cells string) string {
	name := "'" + strings.ReplaceAll(s.SheetName, "'", "''") + "'"
	if cells == "" {
		return name
	}
	return name + "!" + cells
}

func (s *SheetService) header() []interface{} {
	values := make([]interface{}, len(s.colMap))
	for field, idx := range s.colMap {
		values[idx] = field
	}
	return values
}

func (s *SheetService) row(r model.Registrant) []interface{} {
	values := make([]interface{}, len(s.colMap))
	for field, idx := range s.colMap {
		switch field {
		case "ID":
			values[idx] = r.RegistrationID
		case "Name":
			values[idx] = r.Name
		case "Roll":
			values[idx] = r.Roll
		case "Group":
			values[idx] = string(r.Group)
		case "Gender":
			values[idx] = string(r.Gender)
		case "Date":
			// ISO dates sort in the sheet; unparsable legacy dates stay as typed
			if on, ok := r.RegisteredOn(); ok {
				values[idx] = on.Format(isoDate)
			} else {
				values[idx] = r.RegistrationDate
			}
		case "Paid":
			values[idx] = int(r.Paid)
		case "Email":
			values[idx] = r.Email
		case "Phone":
			values[idx] = r.Phone
		case "Parts":
			parts := make([]string, len(r.PartsAvailable))
			for i, p := range r.PartsAvailable {
				parts[i] = string(p)
			}
			values[idx] = strings.Join(parts, ", ")
		case "Size":
			if r.HasPart(model.PartTShirt) {
				values[idx] = r.TShirtSize
			} else {
				values[idx] = ""
			}
		case "Revoked":
			values[idx] = r.Revoked
		case "ReferredBy":
			values[idx] = r.ReferredBy
		case "Photo":
			values[idx] = r.Photo
		case "Link":
			if s.VerifyBaseURL != "" && r.RegistrationID != "" {
				values[idx] = codec.VerificationURL(s.VerifyBaseURL, r.RegistrationID)
			} else {
				values[idx] = ""
			}
		default:
			values[idx] = ""
		}
	}
	return values
}
