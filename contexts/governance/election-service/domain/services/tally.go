package services

import (
	"math"
	"sort"
	"strconv"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
)

// Tally aggregates confirmed ballots into per-position results. It is a pure
// function of its inputs: the same ledger always yields the same output.
//
// Ranking: votes descending, ties broken by registration order. Candidates no
// longer approved are excluded from ranking and their votes reported as voided.
// Percentages are shares of every selection made for the position, voided ones
// included, so voided votes never lift the remaining candidates.
func Tally(
	election entities.Election,
	positions []entities.Position,
	candidates []entities.Candidate,
	ballots []entities.Ballot,
) entities.ElectionResults {
	votes := make(map[string]map[string]int, len(positions))
	counted := 0
	computedAt := election.UpdatedAt.UTC()
	for _, ballot := range ballots {
		if ballot.ElectionID != election.ElectionID || ballot.Status != entities.BallotStatusConfirmed {
			continue
		}
		counted++
		if ballot.SubmittedAt.After(computedAt) {
			computedAt = ballot.SubmittedAt.UTC()
		}
		for _, selection := range ballot.Selections {
			byCandidate := votes[selection.PositionID]
			if byCandidate == nil {
				byCandidate = make(map[string]int)
				votes[selection.PositionID] = byCandidate
			}
			byCandidate[selection.CandidateID]++
		}
	}

	byPosition := make(map[string][]entities.Candidate, len(positions))
	for _, candidate := range candidates {
		if candidate.ElectionID != election.ElectionID {
			continue
		}
		byPosition[candidate.PositionID] = append(byPosition[candidate.PositionID], candidate)
	}

	ordered := OrderPositions(election, positions)
	results := make([]entities.PositionResult, 0, len(ordered))
	for _, position := range ordered {
		if position.ElectionID != election.ElectionID {
			continue
		}
		results = append(results, tallyPosition(position, byPosition[position.PositionID], votes[position.PositionID]))
	}

	return entities.ElectionResults{
		ElectionID:          election.ElectionID,
		Status:              election.Status,
		Provisional:         election.Status != entities.ElectionStatusEnded,
		BallotsCounted:      counted,
		TotalEligibleVoters: election.TotalEligibleVoters,
		Turnout:             election.Turnout(counted),
		Positions:           results,
		ComputedAt:          computedAt,
	}
}

func tallyPosition(
	position entities.Position,
	candidates []entities.Candidate,
	votes map[string]int,
) entities.PositionResult {
	items := append([]entities.Candidate(nil), candidates...)
	sortByRegistration(items)

	result := entities.PositionResult{
		PositionID: position.PositionID,
		Name:       position.Name,
		MaxWinners: maxWinners(position),
	}

	seen := make(map[string]struct{}, len(items))
	ranked := make([]entities.CandidateResult, 0, len(items))
	for _, candidate := range items {
		seen[candidate.CandidateID] = struct{}{}
		count := votes[candidate.CandidateID]
		if candidate.Approved() {
			result.ValidVotes += count
			ranked = append(ranked, entities.CandidateResult{
				CandidateID: candidate.CandidateID,
				DisplayName: candidate.DisplayName,
				Votes:       count,
			})
			continue
		}
		if count > 0 {
			result.VoidedVotes += count
			result.Voided = append(result.Voided, entities.VoidedResult{
				CandidateID: candidate.CandidateID,
				DisplayName: candidate.DisplayName,
				Status:      candidate.Status,
				Votes:       count,
			})
		}
	}

	// Selections for candidates the registry no longer knows are still
	// counted as voided so the position total is conserved.
	orphans := make([]string, 0)
	for candidateID, count := range votes {
		if _, ok := seen[candidateID]; ok || count == 0 {
			continue
		}
		orphans = append(orphans, candidateID)
	}
	sort.Strings(orphans)
	for _, candidateID := range orphans {
		result.VoidedVotes += votes[candidateID]
		result.Voided = append(result.Voided, entities.VoidedResult{
			CandidateID: candidateID,
			Votes:       votes[candidateID],
		})
	}

	// ranked is already in registration order, so a stable sort on votes alone
	// applies the registration tie-break.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Votes > ranked[j].Votes
	})
	result.TotalSelections = result.ValidVotes + result.VoidedVotes
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Percentage = percentage(ranked[i].Votes, result.TotalSelections)
		ranked[i].Tied = (i > 0 && ranked[i-1].Votes == ranked[i].Votes) ||
			(i+1 < len(ranked) && ranked[i+1].Votes == ranked[i].Votes)
		ranked[i].Winner = ranked[i].Rank <= result.MaxWinners && ranked[i].Votes > 0
	}

	result.Candidates = ranked
	return result
}

func percentage(count int, total int) float64 {
	if total <= 0 || count <= 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}

func maxWinners(position entities.Position) int {
	if position.MaxWinners < 1 {
		return 1
	}
	return position.MaxWinners
}

// ResultsVersion identifies the ledger state a tally was computed from.
func ResultsVersion(election entities.Election) string {
	return election.ElectionID + "|" + string(election.Status) + "|" +
		strconv.Itoa(election.BallotsSubmitted) + "|" + election.UpdatedAt.UTC().Format(time.RFC3339Nano)
}
