package service

import (
	"context"
	"fmt"
	"slices"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/session"
)

// AddItem increments the line for itemID or appends it with quantity 1.
func AddItem(cart []domain.CartLine, itemID string) []domain.CartLine {
	i := slices.IndexFunc(cart, func(l domain.CartLine) bool { return l.ItemID == itemID })
	if i < 0 {
		return append(cart, domain.CartLine{ItemID: itemID, Quantity: 1})
	}
	cart[i].Quantity++
	return cart
}

// RemoveItem decrements the line for itemID and drops it at zero. Unknown
// items are ignored.
func RemoveItem(cart []domain.CartLine, itemID string) []domain.CartLine {
	i := slices.IndexFunc(cart, func(l domain.CartLine) bool { return l.ItemID == itemID })
	if i < 0 {
		return cart
	}
	if cart[i].Quantity > 1 {
		cart[i].Quantity--
		return cart
	}
	return slices.Delete(cart, i, i+1)
}

func (s *Service) Cart(ctx context.Context, sessionID string) (domain.CartView, error) {
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("load session: %w", err)
	}
	return s.view(ctx, state), nil
}

func (s *Service) AddToCart(ctx context.Context, sessionID string, itemID string) (domain.CartView, error) {
	return s.mutate(ctx, sessionID, func(state *domain.SessionState) error {
		state.Cart = AddItem(state.Cart, itemID)
		return nil
	})
}

func (s *Service) RemoveFromCart(ctx context.Context, sessionID string, itemID string) (domain.CartView, error) {
	return s.mutate(ctx, sessionID, func(state *domain.SessionState) error {
		state.Cart = RemoveItem(state.Cart, itemID)
		return nil
	})
}

// SetShipping selects the shipping area for zip. Zip 0 clears the selection.
// An unknown zip returns ErrShippingNotFound and leaves the session untouched.
func (s *Service) SetShipping(ctx context.Context, sessionID string, zip int) (domain.CartView, error) {
	return s.mutate(ctx, sessionID, func(state *domain.SessionState) error {
		if zip == 0 {
			state.Fees.Shipping = 0
			state.Address = nil
			return nil
		}
		area, ok := s.shipping.AreaFor(zip)
		if !ok {
			return fmt.Errorf("zip %d: %w", zip, ErrShippingNotFound)
		}
		state.Fees.Shipping = area.Price
		state.Address = &domain.ShippingSelection{Zip: zip, Area: area.Name, Method: area.Method}
		return nil
	})
}

func (s *Service) SetBankTransfer(ctx context.Context, sessionID string, enabled bool) (domain.CartView, error) {
	return s.mutate(ctx, sessionID, func(state *domain.SessionState) error {
		state.BankTransfer = enabled
		return nil
	})
}

// mutate applies fn to the stored session and returns the view of the state
// it wrote. Nothing is written when fn fails.
func (s *Service) mutate(ctx context.Context, sessionID string, fn func(*domain.SessionState) error) (domain.CartView, error) {
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("load session: %w", err)
	}
	if err := fn(&state); err != nil {
		return domain.CartView{}, err
	}
	state = session.Normalize(state)
	if err := s.sessions.Save(ctx, sessionID, state); err != nil {
		return domain.CartView{}, fmt.Errorf("save session: %w", err)
	}
	return s.view(ctx, state), nil
}

func (s *Service) view(ctx context.Context, state domain.SessionState) domain.CartView {
	breakdown, items := s.priceCart(ctx, state)

	var token string
	if s.tokens != nil {
		signed, err := s.tokens.Sign(state)
		if err != nil {
			s.logger.WithError(err).Warn("failed to sign cart token")
		}
		token = signed
	}

	return domain.CartView{
		Token:     token,
		Breakdown: breakdown,
		Address:   state.Address,
		Items:     items,
	}
}
