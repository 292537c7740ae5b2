package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alwitt/visitsync/models"
	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// maxNotesLength longest accepted visit note
const maxNotesLength = 500

var timeParser = func() *when.Parser {
	parser := when.New(nil)
	parser.Add(en.All...)
	parser.Add(common.All...)
	return parser
}()

/*
parseVisitTime parse a visit timestamp, either RFC 3339 or natural language such as
"today 9am" or "yesterday at 14:30"

	@param text string - the user input
	@param base time.Time - reference time for relative expressions
	@returns the timestamp as RFC 3339 UTC, empty for empty input
*/
func parseVisitTime(text string, base time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if parsed, err := time.Parse(time.RFC3339, text); err == nil {
		return parsed.UTC().Format(time.RFC3339), nil
	}
	result, err := timeParser.Parse(text, base)
	if err != nil {
		return "", fmt.Errorf("unable to parse time '%s' [%w]", text, err)
	}
	if result == nil {
		return "", fmt.Errorf("unable to parse time '%s'", text)
	}
	return result.Time.UTC().Format(time.RFC3339), nil
}

// visitInput raw visit fields from flags or the interactive form
type visitInput struct {
	patient     string
	address     string
	serviceType string
	orgName     string
	start       string
	end         string
	notes       string
}

// toVisit convert the raw input into a new visit record
func (in visitInput) toVisit(now time.Time) (models.Visit, error) {
	startedAt, err := parseVisitTime(in.start, now)
	if err != nil {
		return models.Visit{}, err
	}
	endedAt, err := parseVisitTime(in.end, now)
	if err != nil {
		return models.Visit{}, err
	}
	if (startedAt == "") != (endedAt == "") {
		return models.Visit{}, errors.New("start and end must be given together")
	}
	if len([]rune(in.notes)) > maxNotesLength {
		return models.Visit{}, fmt.Errorf("notes exceed %d characters", maxNotesLength)
	}
	return models.Visit{
		VisitDetails: models.VisitDetails{
			StartedAt:   startedAt,
			EndedAt:     endedAt,
			SubmittedAt: now.UTC().Format(time.RFC3339),
			PatientName: strings.TrimSpace(in.patient),
			Address:     strings.TrimSpace(in.address),
			OrgName:     strings.TrimSpace(in.orgName),
			ServiceType: strings.TrimSpace(in.serviceType),
			Notes:       in.notes,
		},
		Synced: models.SyncFlagUnsynced,
	}, nil
}

// promptVisit fill in the visit with an interactive form
func promptVisit(in *visitInput) error {
	checkTime := func(value string) error {
		_, err := parseVisitTime(value, time.Now())
		return err
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Patient").Value(&in.patient),
			huh.NewInput().Title("Address").Value(&in.address),
			huh.NewInput().Title("Service type").Value(&in.serviceType),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Visit start").
				Placeholder("today 9am").
				Value(&in.start).
				Validate(checkTime),
			huh.NewInput().
				Title("Visit end").
				Placeholder("today 10am").
				Value(&in.end).
				Validate(checkTime),
			huh.NewText().Title("Notes").CharLimit(maxNotesLength).Value(&in.notes),
		),
	)
	return form.Run()
}

var addInput visitInput
var addInteractive bool

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a home visit",
	Long: `Record a home visit into the encrypted local store.

If the visit server is reachable the visit is submitted right away; otherwise it is kept
for the next sync. Times accept RFC 3339 or natural language, e.g. "today 9am".
Without --patient on a terminal, an interactive form is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input := addInput
		if addInteractive || (input.patient == "" && term.IsTerminal(int(os.Stdin.Fd()))) {
			if err := promptVisit(&input); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
		}

		record, err := input.toVisit(time.Now())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		engine, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeEngine(ctx, engine)

		engine.CheckConnectivity(ctx)
		stored, err := engine.SubmitVisit(ctx, record)
		if err != nil {
			return err
		}

		if stored.IsDirty() {
			fmt.Printf("%s Visit %s saved offline, will upload on next sync\n", warnStyle.Render("●"), stored.ID)
		} else {
			fmt.Printf("%s Visit submitted as %s\n", passStyle.Render("✓"), stored.ID)
		}
		return nil
	},
}

func init() {
	flags := addCmd.Flags()
	flags.StringVarP(&addInput.patient, "patient", "p", "", "patient name")
	flags.StringVar(&addInput.address, "address", "", "visit address")
	flags.StringVar(&addInput.serviceType, "service", "", "service type")
	flags.StringVar(&addInput.orgName, "org", "", "organization; defaults to the configured one")
	flags.StringVar(&addInput.start, "start", "", "visit start")
	flags.StringVar(&addInput.end, "end", "", "visit end")
	flags.StringVar(&addInput.notes, "notes", "", "free text notes")
	flags.BoolVarP(&addInteractive, "interactive", "i", false, "always show the interactive form")
	rootCmd.AddCommand(addCmd)
}
