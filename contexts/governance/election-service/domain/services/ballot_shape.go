package services

import (
	"sort"

	"guildhall/contexts/governance/election-service/domain/entities"
	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
)

// OrderPositions returns positions in ballot order: the election's position
// list first, then Ordering for anything not listed.
func OrderPositions(election entities.Election, positions []entities.Position) []entities.Position {
	index := make(map[string]int, len(election.PositionIDs))
	for i, id := range election.PositionIDs {
		index[id] = i
	}
	items := append([]entities.Position(nil), positions...)
	sort.SliceStable(items, func(i, j int) bool {
		li, lok := index[items[i].PositionID]
		lj, rok := index[items[j].PositionID]
		switch {
		case lok && rok:
			return li < lj
		case lok != rok:
			return lok
		case items[i].Ordering != items[j].Ordering:
			return items[i].Ordering < items[j].Ordering
		default:
			return items[i].PositionID < items[j].PositionID
		}
	})
	return items
}

// ContestedPositions builds the ballot shape. A position with no approved
// candidate is dropped, not an error.
func ContestedPositions(
	election entities.Election,
	positions []entities.Position,
	candidates []entities.Candidate,
) []entities.BallotFormPosition {
	byPosition := make(map[string][]entities.Candidate)
	for _, candidate := range candidates {
		if candidate.ElectionID != election.ElectionID || !candidate.Approved() {
			continue
		}
		byPosition[candidate.PositionID] = append(byPosition[candidate.PositionID], candidate)
	}

	shape := make([]entities.BallotFormPosition, 0, len(positions))
	for _, position := range OrderPositions(election, positions) {
		if position.ElectionID != election.ElectionID {
			continue
		}
		items := byPosition[position.PositionID]
		if len(items) == 0 {
			continue
		}
		sortByRegistration(items)
		shape = append(shape, entities.BallotFormPosition{
			Position:   position,
			Candidates: items,
		})
	}
	return shape
}

// CheckCompleteness verifies that selections name every contested position
// exactly once and nothing else.
func CheckCompleteness(
	shape []entities.BallotFormPosition,
	positions []entities.Position,
	selections []entities.Selection,
) error {
	contested := make(map[string]entities.Position, len(shape))
	for _, item := range shape {
		contested[item.Position.PositionID] = item.Position
	}
	known := make(map[string]entities.Position, len(positions))
	for _, position := range positions {
		known[position.PositionID] = position
	}

	seen := make(map[string]int, len(selections))
	var result domainerrors.IncompleteBallotError
	for _, selection := range selections {
		seen[selection.PositionID]++
		if seen[selection.PositionID] > 1 {
			if seen[selection.PositionID] == 2 {
				if _, ok := contested[selection.PositionID]; ok {
					result.Duplicate = append(result.Duplicate, refOf(selection.PositionID, known))
				}
			}
			continue
		}
		if _, ok := contested[selection.PositionID]; !ok {
			result.Extra = append(result.Extra, refOf(selection.PositionID, known))
		}
	}
	for _, item := range shape {
		if seen[item.Position.PositionID] == 0 {
			result.Missing = append(result.Missing, refOf(item.Position.PositionID, known))
		}
	}

	if len(result.Missing) == 0 && len(result.Extra) == 0 && len(result.Duplicate) == 0 {
		return nil
	}
	return &result
}

// CheckSelections verifies each selected candidate is approved and stands for
// the position it is paired with.
func CheckSelections(
	positions []entities.Position,
	candidates []entities.Candidate,
	selections []entities.Selection,
) error {
	known := make(map[string]entities.Position, len(positions))
	for _, position := range positions {
		known[position.PositionID] = position
	}
	byID := make(map[string]entities.Candidate, len(candidates))
	for _, candidate := range candidates {
		byID[candidate.CandidateID] = candidate
	}

	for _, selection := range selections {
		reject := func(reason string) error {
			return &domainerrors.InvalidSelectionError{
				PositionID:   selection.PositionID,
				PositionName: known[selection.PositionID].Name,
				CandidateID:  selection.CandidateID,
				Reason:       reason,
			}
		}
		candidate, ok := byID[selection.CandidateID]
		if !ok {
			return reject("candidate not found")
		}
		if candidate.PositionID != selection.PositionID {
			return reject("candidate does not stand for this position")
		}
		if !candidate.Approved() {
			return reject("candidate is not approved")
		}
	}
	return nil
}

func refOf(positionID string, known map[string]entities.Position) domainerrors.PositionRef {
	return domainerrors.PositionRef{
		PositionID: positionID,
		Name:       known[positionID].Name,
	}
}

func sortByRegistration(items []entities.Candidate) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].RegisteredBefore(items[j])
	})
}
