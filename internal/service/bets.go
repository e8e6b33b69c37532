package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rongwang/groupbets-server/internal/ident"
	"github.com/rongwang/groupbets-server/internal/metrics"
	"github.com/rongwang/groupbets-server/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *DefaultService) CreateBet(ctx context.Context, req models.CreateBetRequest) (*models.BetResponse, error) {
	groupID, err := ident.Parse(req.GroupID)
	if err != nil {
		return nil, err
	}
	progress, err := s.progressEntries(req.UserProgress)
	if err != nil {
		return nil, err
	}

	bet := &models.Bet{
		ID:           ident.New(),
		GroupID:      groupID,
		Title:        req.Title,
		Status:       models.BetPlanned,
		StartDate:    req.StartDate.UTC(),
		EndDate:      req.EndDate.UTC(),
		UserProgress: progress,
		Meta:         req.Meta,
	}
	if req.Status != "" {
		bet.Status = req.Status
	}
	if bet.Meta == nil {
		bet.Meta = map[string]string{}
	}

	if err := s.repo.CreateBet(ctx, bet); err != nil {
		return nil, fmt.Errorf("error creating bet: %w", err)
	}

	slog.Info("Bet created", "bet_id", bet.ID.Hex(), "group_id", req.GroupID, "status", bet.Status)
	return toBetResponse(bet), nil
}

func (s *DefaultService) GetBet(ctx context.Context, id string) (*models.BetResponse, error) {
	bid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}
	return s.readBet(ctx, bid)
}

func (s *DefaultService) ListBets(ctx context.Context, q models.ListBetsQuery) ([]models.BetResponse, error) {
	filter := models.BetFilter{Status: q.Status, Page: pageOf(q.PageQuery)}
	if q.GroupID != "" {
		groupID, err := ident.Parse(q.GroupID)
		if err != nil {
			return nil, err
		}
		filter.GroupID = &groupID
	}

	bets, err := s.repo.ListBets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing bets: %w", err)
	}

	out := make([]models.BetResponse, 0, len(bets))
	for i := range bets {
		out = append(out, *toBetResponse(&bets[i]))
	}
	return out, nil
}

// UpdateBet applies the fields present in req. user_progress replaces the
// whole list; the owning group is never touched, even on a status change.
func (s *DefaultService) UpdateBet(ctx context.Context, id string, req models.UpdateBetRequest) (*models.BetResponse, error) {
	bid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}

	patch := models.BetPatch{
		Title:  req.Title,
		Status: req.Status,
		Meta:   req.Meta,
	}
	if req.StartDate != nil {
		start := req.StartDate.UTC()
		patch.StartDate = &start
	}
	if req.EndDate != nil {
		end := req.EndDate.UTC()
		patch.EndDate = &end
	}
	if req.UserProgress != nil {
		progress, err := s.progressEntries(*req.UserProgress)
		if err != nil {
			return nil, err
		}
		patch.UserProgress = &progress
	}

	bet, err := s.repo.UpdateBet(ctx, bid, patch)
	if err != nil {
		return nil, fmt.Errorf("error updating bet: %w", err)
	}
	if bet == nil {
		return nil, ErrNotFound
	}

	if req.Status != nil {
		metrics.RecordBetTransition(string(*req.Status))
	}
	if !patch.Empty() {
		slog.Info("Bet updated", "bet_id", id)
	}
	return toBetResponse(bet), nil
}

func (s *DefaultService) DeleteBet(ctx context.Context, id string) error {
	bid, err := ident.Parse(id)
	if err != nil {
		return err
	}

	found, err := s.repo.DeleteBet(ctx, bid)
	if err != nil {
		return fmt.Errorf("error deleting bet: %w", err)
	}
	if !found {
		return ErrNotFound
	}

	slog.Info("Bet deleted", "bet_id", id)
	return nil
}

// ActivateBet marks the bet active and makes it the group's current bet,
// replacing whatever was current before.
func (s *DefaultService) ActivateBet(ctx context.Context, id string) (*models.BetResponse, error) {
	bid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}

	bet, err := s.repo.SetBetStatus(ctx, bid, models.BetActive)
	if err != nil {
		return nil, fmt.Errorf("error activating bet: %w", err)
	}
	if bet == nil {
		return nil, ErrNotFound
	}
	metrics.RecordBetTransition(string(models.BetActive))

	if err := s.repo.SetCurrentBet(ctx, bet.GroupID, bet.ID); err != nil {
		return nil, fmt.Errorf("error setting current bet: %w", err)
	}

	slog.Info("Bet activated", "bet_id", id, "group_id", bet.GroupID.Hex())
	return toBetResponse(bet), nil
}

// FinishBet marks the bet finished, records it in the group's past bets and
// clears current_bet_id only if it still points at this bet.
func (s *DefaultService) FinishBet(ctx context.Context, id string) (*models.BetResponse, error) {
	bid, err := ident.Parse(id)
	if err != nil {
		return nil, err
	}

	bet, err := s.repo.SetBetStatus(ctx, bid, models.BetFinished)
	if err != nil {
		return nil, fmt.Errorf("error finishing bet: %w", err)
	}
	if bet == nil {
		return nil, ErrNotFound
	}
	metrics.RecordBetTransition(string(models.BetFinished))

	if err := s.repo.AddPastBet(ctx, bet.GroupID, bet.ID); err != nil {
		return nil, fmt.Errorf("error adding past bet: %w", err)
	}
	if err := s.repo.ClearCurrentBet(ctx, bet.GroupID, bet.ID); err != nil {
		return nil, fmt.Errorf("error clearing current bet: %w", err)
	}

	slog.Info("Bet finished", "bet_id", id, "group_id", bet.GroupID.Hex())
	return toBetResponse(bet), nil
}

// SetProgress upserts the progress entry of userID. The bet is read back
// last, so a bet deleted in between yields ErrNotFound.
func (s *DefaultService) SetProgress(ctx context.Context, betID, userID string, progress float64) (*models.BetResponse, error) {
	bid, err := ident.Parse(betID)
	if err != nil {
		return nil, err
	}
	uid, err := ident.Parse(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	matched, err := s.repo.UpdateProgress(ctx, bid, uid, progress, now)
	if err != nil {
		return nil, fmt.Errorf("error updating progress: %w", err)
	}
	mode := "update"
	if !matched {
		mode = "append"
		entry := models.ProgressEntry{UserID: uid, Progress: progress, LastUpdated: now}
		if err := s.repo.AppendProgress(ctx, bid, entry); err != nil {
			return nil, fmt.Errorf("error appending progress: %w", err)
		}
	}

	// An append to a missing bet writes nothing; only count once the bet is read back.
	bet, err := s.readBet(ctx, bid)
	if err != nil {
		return nil, err
	}
	metrics.RecordProgressUpdate(mode)
	return bet, nil
}

func (s *DefaultService) readBet(ctx context.Context, bid primitive.ObjectID) (*models.BetResponse, error) {
	bet, err := s.repo.GetBet(ctx, bid)
	if err != nil {
		return nil, fmt.Errorf("error getting bet: %w", err)
	}
	if bet == nil {
		return nil, ErrNotFound
	}
	return toBetResponse(bet), nil
}

// progressEntries converts request entries, collapsing repeats of a user id
// into its first position with the last values given.
func (s *DefaultService) progressEntries(reqs []models.ProgressEntryRequest) ([]models.ProgressEntry, error) {
	entries := make([]models.ProgressEntry, 0, len(reqs))
	index := make(map[primitive.ObjectID]int, len(reqs))
	now := s.now()

	for _, r := range reqs {
		uid, err := ident.Parse(r.UserID)
		if err != nil {
			return nil, err
		}
		entry := models.ProgressEntry{UserID: uid, Progress: r.Progress, LastUpdated: now}
		if r.LastUpdated != nil {
			entry.LastUpdated = r.LastUpdated.UTC()
		}
		if i, ok := index[uid]; ok {
			entries[i] = entry
			continue
		}
		index[uid] = len(entries)
		entries = append(entries, entry)
	}
	return entries, nil
}
