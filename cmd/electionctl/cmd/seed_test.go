package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	electionservice "guildhall/contexts/governance/election-service"
)

const sampleSeed = `
elections:
  - title: Annual general meeting
    rules: One vote per position.
    starts_at: 2030-05-01T08:00:00Z
    ends_at: 2030-05-02T20:00:00Z
    total_eligible_voters: 120
    publish: true
    positions:
      - name: President
        candidates:
          - display_name: Alice
            status: approved
          - display_name: Bob
            status: Approved
      - name: Secretary
        candidates:
          - display_name: Carol
  - title: Budget committee
    starts_at: 2030-06-01T08:00:00Z
    ends_at: 2030-06-01T18:00:00Z
    positions:
      - name: Member
        max_winners: 3
`

func TestParseSeedFile(t *testing.T) {
	file, err := ParseSeedFile([]byte(sampleSeed))
	if err != nil {
		t.Fatalf("parse seed failed: %v", err)
	}
	if len(file.Elections) != 2 || len(file.Elections[0].Positions) != 2 {
		t.Fatalf("unexpected seed layout %+v", file)
	}
	if file.Elections[1].Positions[0].MaxWinners != 3 {
		t.Fatalf("expected max winners 3, got %d", file.Elections[1].Positions[0].MaxWinners)
	}

	if _, err := ParseSeedFile([]byte("elections: []\n")); err == nil {
		t.Fatalf("expected empty seed to fail")
	}
	if _, err := ParseSeedFile([]byte("elections:\n  - title: x\n    color: red\n")); err == nil {
		t.Fatalf("expected unknown field to fail")
	}
}

func TestApplySeed(t *testing.T) {
	file, err := ParseSeedFile([]byte(sampleSeed))
	if err != nil {
		t.Fatalf("parse seed failed: %v", err)
	}
	module := electionservice.NewInMemoryModule(nil)

	seeded, err := ApplySeed(context.Background(), module, file)
	if err != nil {
		t.Fatalf("apply seed failed: %v", err)
	}
	if len(seeded) != 2 {
		t.Fatalf("expected two elections, got %d", len(seeded))
	}
	if seeded[0].Status != "upcoming" || seeded[0].Positions != 2 || seeded[0].Candidates != 3 {
		t.Fatalf("unexpected first election summary %+v", seeded[0])
	}
	if seeded[1].Status != "draft" || seeded[1].Candidates != 0 {
		t.Fatalf("unexpected second election summary %+v", seeded[1])
	}

	form, err := module.Elections.BallotForm(context.Background(), seeded[0].ElectionID)
	if err != nil {
		t.Fatalf("ballot form failed: %v", err)
	}
	// Carol is still pending, so only President is contested.
	if len(form.Positions) != 1 || len(form.Positions[0].Candidates) != 2 {
		t.Fatalf("unexpected ballot form %+v", form.Positions)
	}
}

func TestApplySeedReportsBadTimes(t *testing.T) {
	module := electionservice.NewInMemoryModule(nil)
	_, err := ApplySeed(context.Background(), module, SeedFile{Elections: []SeedElection{{
		Title:    "Broken",
		StartsAt: "tomorrow",
		EndsAt:   "2030-01-01T00:00:00Z",
	}}})
	if err == nil || !strings.Contains(err.Error(), "elections[0].starts_at") {
		t.Fatalf("expected starts_at error, got %v", err)
	}
}

func TestPrintResultFormats(t *testing.T) {
	rows := []SeededElection{{ElectionID: "e1", Title: "Vote", Status: "draft"}}
	for _, format := range []string{"json", "prettyjson", "yaml"} {
		flagFormat = format
		var out bytes.Buffer
		if err := printResult(&out, rows); err != nil {
			t.Fatalf("%s: print failed: %v", format, err)
		}
		if !strings.Contains(out.String(), "e1") {
			t.Fatalf("%s: expected election id in output, got %q", format, out.String())
		}
	}
	flagFormat = "xml"
	if err := printResult(&bytes.Buffer{}, rows); err == nil {
		t.Fatalf("expected unknown format to fail")
	}
	flagFormat = "prettyjson"
}
