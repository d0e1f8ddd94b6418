package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/campwire/bunkmate/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import roster data from the camp registration system",
		Long: `Import CSV exports from the upstream camp registration system.

Each subcommand loads one entity type. Rows are upserted by external id,
so re-importing a fresh export is always safe. Request submissions are
hashed on import; unchanged text is skipped by the next resolve run.`,
	}

	cmd.AddCommand(importCampersCmd())
	cmd.AddCommand(importSessionsCmd())
	cmd.AddCommand(importBunksCmd())
	cmd.AddCommand(importPlansCmd())
	cmd.AddCommand(importRequestsCmd())

	return cmd
}

func importCampersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "campers <file>",
		Short: "Import campers and their session enrollments",
		Long: `Import the camper roster. Expected columns:

external_id, year, first_name, last_name, preferred_name, gender, grade,
birthdate (2006-01-02), school, household_id, session_id, status, prior_level

One row per (camper, session); a camper enrolled in two sessions appears twice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rows, err := readCSV(args[0])
			if err != nil {
				return err
			}

			seen := make(map[string]bool)
			var persons []model.Person
			var attendees []model.Attendee
			for _, row := range rows {
				year, err := row.intField("year")
				if err != nil {
					return err
				}
				grade, _ := row.intField("grade")
				priorLevel, _ := row.intField("prior_level")

				p := model.Person{
					ExternalID:    row.field("external_id"),
					FirstName:     row.field("first_name"),
					LastName:      row.field("last_name"),
					PreferredName: row.field("preferred_name"),
					School:        row.field("school"),
					HouseholdID:   row.field("household_id"),
					Gender:        row.field("gender"),
					Grade:         grade,
					Year:          year,
				}
				if bd := row.field("birthdate"); bd != "" {
					t, err := time.Parse("2006-01-02", bd)
					if err != nil {
						return fmt.Errorf("row %d: invalid birthdate %q: %w", row.line, bd, err)
					}
					p.Birthdate = t
				}
				if key := p.Key(); !seen[key] {
					seen[key] = true
					persons = append(persons, p)
				}

				if sessionID := row.field("session_id"); sessionID != "" {
					status := model.EnrollmentStatus(row.field("status"))
					if status == "" {
						status = model.EnrollmentEnrolled
					}
					attendees = append(attendees, model.Attendee{
						Person:     p,
						SessionID:  sessionID,
						Status:     status,
						PriorLevel: priorLevel,
						Year:       year,
					})
				}
			}

			if err := store.SavePersons(ctx, persons); err != nil {
				return fmt.Errorf("failed to save campers: %w", err)
			}
			if len(attendees) > 0 {
				if err := store.SaveAttendees(ctx, attendees); err != nil {
					return fmt.Errorf("failed to save enrollments: %w", err)
				}
			}

			fmt.Println(formatSuccess(fmt.Sprintf("Imported %d campers, %d enrollments", len(persons), len(attendees))))
			return nil
		},
	}
}

func importSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <file>",
		Short: "Import camp sessions",
		Long: `Import session definitions. Expected columns:

external_id, name, kind (main|embedded|specialty), year,
start_date (2006-01-02), end_date (2006-01-02)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rows, err := readCSV(args[0])
			if err != nil {
				return err
			}

			var sessions []model.Session
			for _, row := range rows {
				year, err := row.intField("year")
				if err != nil {
					return err
				}
				s := model.Session{
					ExternalID: row.field("external_id"),
					Name:       row.field("name"),
					Kind:       model.SessionKind(row.field("kind")),
					Year:       year,
				}
				if d := row.field("start_date"); d != "" {
					if s.StartDate, err = time.Parse("2006-01-02", d); err != nil {
						return fmt.Errorf("row %d: invalid start_date: %w", row.line, err)
					}
				}
				if d := row.field("end_date"); d != "" {
					if s.EndDate, err = time.Parse("2006-01-02", d); err != nil {
						return fmt.Errorf("row %d: invalid end_date: %w", row.line, err)
					}
				}
				sessions = append(sessions, s)
			}

			if err := store.SaveSessions(ctx, sessions); err != nil {
				return fmt.Errorf("failed to save sessions: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Imported %d sessions", len(sessions))))
			return nil
		},
	}
}

func importBunksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bunks <file>",
		Short: "Import cabins",
		Long: `Import cabin definitions. Expected columns:

external_id, name, gender (male|female|empty for any), year, level, is_active`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rows, err := readCSV(args[0])
			if err != nil {
				return err
			}

			var bunks []model.Bunk
			for _, row := range rows {
				year, err := row.intField("year")
				if err != nil {
					return err
				}
				level, _ := row.intField("level")
				active := true
				if v := row.field("is_active"); v != "" {
					active, err = strconv.ParseBool(v)
					if err != nil {
						return fmt.Errorf("row %d: invalid is_active %q", row.line, v)
					}
				}
				bunks = append(bunks, model.Bunk{
					ExternalID: row.field("external_id"),
					Name:       row.field("name"),
					Gender:     row.field("gender"),
					Year:       year,
					Level:      level,
					IsActive:   active,
				})
			}

			if err := store.SaveBunks(ctx, bunks); err != nil {
				return fmt.Errorf("failed to save bunks: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Imported %d bunks", len(bunks))))
			return nil
		},
	}
}

func importPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans <file>",
		Short: "Import per-session bunk capacity plans",
		Long: `Import bunk plans, the unit of usable capacity. Expected columns:

bunk_external_id, session_id, year, capacity, max_capacity,
hard_minimum, preferred_minimum`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rows, err := readCSV(args[0])
			if err != nil {
				return err
			}

			var plans []model.BunkPlan
			for _, row := range rows {
				year, err := row.intField("year")
				if err != nil {
					return err
				}
				capacity, err := row.intField("capacity")
				if err != nil {
					return err
				}
				maxCapacity, _ := row.intField("max_capacity")
				hardMin, _ := row.intField("hard_minimum")
				prefMin, _ := row.intField("preferred_minimum")
				plans = append(plans, model.BunkPlan{
					BunkExternalID:   row.field("bunk_external_id"),
					SessionID:        row.field("session_id"),
					Year:             year,
					Capacity:         capacity,
					MaxCapacity:      maxCapacity,
					HardMinimum:      hardMin,
					PreferredMinimum: prefMin,
				})
			}

			if err := store.SaveBunkPlans(ctx, plans); err != nil {
				return fmt.Errorf("failed to save bunk plans: %w", err)
			}
			fmt.Println(formatSuccess(fmt.Sprintf("Imported %d bunk plans", len(plans))))
			return nil
		},
	}
}

func importRequestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requests <file>",
		Short: "Import raw request submissions",
		Long: `Import raw intake submissions for later resolution. Expected columns:

requester_external_id, field_type, year, raw_text

field_type is one of: bunk_request, bunk_avoid, parent_notes,
internal_notes, socialize_with. Re-importing unchanged text leaves the
processed state untouched; changed text queues the row for reprocessing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rows, err := readCSV(args[0])
			if err != nil {
				return err
			}

			valid := make(map[model.FieldType]bool)
			for _, f := range model.AllFieldTypes() {
				valid[f] = true
			}

			var submissions []model.OriginalRequest
			for _, row := range rows {
				year, err := row.intField("year")
				if err != nil {
					return err
				}
				field := model.FieldType(row.field("field_type"))
				if !valid[field] {
					return fmt.Errorf("row %d: unknown field_type %q", row.line, field)
				}
				text := row.field("raw_text")
				if text == "" {
					continue
				}
				sub := model.OriginalRequest{
					RequesterExternalID: row.field("requester_external_id"),
					FieldType:           field,
					Year:                year,
					RawText:             text,
				}
				sub.ContentHash = sub.GenerateHash()
				submissions = append(submissions, sub)
			}

			if err := store.SaveOriginalRequests(ctx, submissions); err != nil {
				return fmt.Errorf("failed to save submissions: %w", err)
			}

			slog.Info("submissions imported", "count", len(submissions))
			fmt.Println(formatSuccess(fmt.Sprintf("Imported %d submissions", len(submissions))))
			return nil
		},
	}
}

// csvRow is one data row with access to columns by header name.
type csvRow struct {
	columns map[string]int
	values  []string
	line    int
}

func (r csvRow) field(name string) string {
	idx, ok := r.columns[name]
	if !ok || idx >= len(r.values) {
		return ""
	}
	return r.values[idx]
}

func (r csvRow) intField(name string) (int, error) {
	v := r.field(name)
	if v == "" {
		return 0, fmt.Errorf("row %d: missing %s", r.line, name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("row %d: invalid %s %q", r.line, name, v)
	}
	return n, nil
}

// readCSV loads a headered CSV file into rows addressable by column name.
func readCSV(path string) ([]csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}

	var rows []csvRow
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", path, line, err)
		}
		rows = append(rows, csvRow{columns: columns, values: record, line: line})
	}
	return rows, nil
}
