package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"staybook/internal/domain"
)

type QueryService struct {
	repo     domain.ReservationRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReservationRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	key := fmt.Sprintf("reservation:%d", id)
	var rv domain.Reservation
	if ok, _ := s.cache.Get(ctx, key, &rv); ok {
		return rv, nil
	}
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	_ = s.cache.Set(ctx, key, r, int(s.cacheTTL.Seconds()))
	return r, nil
}

func (s *QueryService) ListByProperty(ctx context.Context, propertyID string, limit int) (domain.ReservationsPage, error) {
	key := fmt.Sprintf("reservations:prop:%s", propertyID)
	var out domain.ReservationsPage
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	page, err := s.repo.ListReservations(ctx, domain.ReservationsQuery{PropertyID: &propertyID, Limit: limit})
	if err != nil {
		return domain.ReservationsPage{}, err
	}

	// copy slice to avoid aliasing the repo's backing array (prevents callers from mutating cached value)
	copyPG := deepCopyReservationsPage(page)

	// optional size guard
	if b, _ := json.Marshal(copyPG); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, copyPG, int(s.cacheTTL.Seconds()))
	}
	return copyPG, nil
}

func deepCopyReservationsPage(in domain.ReservationsPage) domain.ReservationsPage {
	out := domain.ReservationsPage{NextCursor: in.NextCursor}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Reservation, n)
		copy(out.Items, in.Items)
	}
	return out
}
