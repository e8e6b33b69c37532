package service

import (
	"github.com/rongwang/groupbets-server/internal/ident"
	"github.com/rongwang/groupbets-server/internal/models"
)

// Conversions from storage records to wire responses. Identifiers leave
// through ident; the password hash never does.

func toUserResponse(u *models.User) *models.UserResponse {
	return &models.UserResponse{
		ID:              ident.Hex(u.ID),
		ProfileURL:      u.ProfileURL,
		Username:        u.Username,
		Email:           u.Email,
		GroupIDs:        ident.HexAll(u.GroupIDs),
		AverageSpending: u.AverageSpending,
	}
}

func toGroupResponse(g *models.Group) *models.GroupResponse {
	return &models.GroupResponse{
		ID:           ident.Hex(g.ID),
		Name:         g.Name,
		Description:  g.Description,
		UserIDs:      ident.HexAll(g.UserIDs),
		CurrentBetID: ident.HexOptional(g.CurrentBetID),
		PastBetIDs:   ident.HexAll(g.PastBetIDs),
		CreatedAt:    g.CreatedAt,
		IsActive:     g.IsActive,
	}
}

func toBetResponse(b *models.Bet) *models.BetResponse {
	progress := make([]models.ProgressEntryResponse, 0, len(b.UserProgress))
	for _, p := range b.UserProgress {
		progress = append(progress, models.ProgressEntryResponse{
			UserID:      ident.Hex(p.UserID),
			Progress:    p.Progress,
			LastUpdated: p.LastUpdated,
		})
	}
	meta := b.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return &models.BetResponse{
		ID:           ident.Hex(b.ID),
		GroupID:      ident.Hex(b.GroupID),
		Title:        b.Title,
		Status:       b.Status,
		StartDate:    b.StartDate,
		EndDate:      b.EndDate,
		UserProgress: progress,
		Meta:         meta,
	}
}
