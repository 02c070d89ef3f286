package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/swncrew-core/internal/mission"
)

// ErrInvalidMissions is returned when at least one mission in the file
// fails validation.
var ErrInvalidMissions = errors.New("invalid missions")

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a mission file without submitting it",
		Long: `Validate a JSON file holding one mission or an array of missions,
applying the same checks the scheduler applies on admission. Use "-" to
read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, path string) error {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	missions, err := decodeMissions(raw)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	failed := 0
	for i, m := range missions {
		if err := mission.Validate(m); err != nil {
			failed++
			fmt.Fprintf(out, "✗ mission %d: %v\n", i, err)
			continue
		}
		fmt.Fprintf(out, "✓ mission %d: valve %d, %d points, %.1fs, %.2f l\n",
			i, m.ValveID, len(m.FlowTrajectory), m.Duration().Seconds(), m.PlannedVolume())
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidMissions, failed, len(missions))
	}
	fmt.Fprintf(out, "✓ All %d mission(s) valid\n", len(missions))
	return nil
}

// decodeMissions accepts a single mission object or an array of them.
func decodeMissions(raw []byte) ([]mission.Mission, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty input")
	}

	if raw[0] == '[' {
		var missions []mission.Mission
		if err := json.Unmarshal(raw, &missions); err != nil {
			return nil, err
		}
		if len(missions) == 0 {
			return nil, errors.New("no missions in array")
		}
		return missions, nil
	}

	var m mission.Mission
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return []mission.Mission{m}, nil
}
