// Package storetest holds the behaviour every store.Repository implementation
// must share. Implementations run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

type RepositorySuite struct {
	suite.Suite

	// NewRepository returns an empty repository. It is called before every test.
	NewRepository func() store.Repository

	repo  store.Repository
	faker *gofakeit.Faker
}

func (s *RepositorySuite) SetupTest() {
	s.repo = s.NewRepository()
	s.faker = gofakeit.New(7)
}

func (s *RepositorySuite) ctx() context.Context {
	return s.T().Context()
}

var base = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func (s *RepositorySuite) randomTransaction(status domain.TransactionStatus, date time.Time) domain.Transaction {
	return domain.Transaction{
		ID:     uuid.NewString(),
		Status: status,
		Detail: "waiting for user",
		Date:   date,
		Email:  s.faker.Email(),
		Payer: domain.Payer{
			Name:           s.faker.Name(),
			Phone:          s.faker.Phone(),
			Identification: s.faker.DigitN(8),
			Address: domain.Address{
				Street: s.faker.Street(),
				Number: s.faker.StreetNumber(),
				Zip:    s.faker.Zip(),
				City:   s.faker.City(),
				State:  s.faker.State(),
			},
		},
		Amount:   int64(s.faker.IntRange(100, 50000)),
		Currency: "ARS",
	}
}

func (s *RepositorySuite) randomOrder(txID string, status domain.OrderStatus, total int64, date time.Time) domain.Order {
	qty := s.faker.IntRange(1, 4)
	return domain.Order{
		ID:     uuid.NewString(),
		Number: s.faker.IntRange(1, 1000),
		Items: []domain.OrderItem{{
			ID:       uuid.NewString(),
			Name:     s.faker.BeerName(),
			Image:    s.faker.URL(),
			Quantity: qty,
			Price:    total,
			Currency: "ARS",
		}},
		Customer: domain.Customer{
			Email:          s.faker.Email(),
			Identification: s.faker.DigitN(8),
		},
		Shipment: domain.Shipment{
			Cost: 300,
			Name: s.faker.Name(),
			Address: domain.Address{
				Street: s.faker.Street(),
				Zip:    "1001",
			},
		},
		Date:          date,
		TransactionID: txID,
		Total:         total,
		Status:        status,
		Comment:       "ring twice, " + s.faker.BeerName(),
	}
}

func (s *RepositorySuite) mustCreateTransaction(tx domain.Transaction) *domain.Transaction {
	created, err := s.repo.CreateTransaction(s.ctx(), tx)
	s.Require().NoError(err)
	return created
}

func (s *RepositorySuite) mustCreateOrder(order domain.Order) *domain.Order {
	created, err := s.repo.CreateOrder(s.ctx(), order)
	s.Require().NoError(err)
	return created
}

// seedOrder creates an order together with the transaction it references.
func (s *RepositorySuite) seedOrder(status domain.OrderStatus, total int64, email string, date time.Time) *domain.Order {
	tx := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusPending, date))
	order := s.randomOrder(tx.ID, status, total, date)
	if email != "" {
		order.Customer.Email = email
	}
	return s.mustCreateOrder(order)
}

var timeOpts = cmpopts.EquateApproxTime(time.Millisecond)

func (s *RepositorySuite) TestCreateAndFindTransaction() {
	want := s.randomTransaction(domain.TxStatusDraft, base)
	s.mustCreateTransaction(want)

	got, err := s.repo.FindTransactionByID(s.ctx(), want.ID)
	s.Require().NoError(err)
	if diff := cmp.Diff(want, *got, timeOpts); diff != "" {
		s.Failf("transaction mismatch", "(-want +got):\n%s", diff)
	}

	_, err = s.repo.FindTransactionByID(s.ctx(), uuid.NewString())
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RepositorySuite) TestCreateTransactionRejectsInvalid() {
	tx := s.randomTransaction("settled", base)
	_, err := s.repo.CreateTransaction(s.ctx(), tx)
	s.ErrorIs(err, store.ErrInvalidInput)

	tx = s.randomTransaction(domain.TxStatusDraft, base)
	tx.Amount = -1
	_, err = s.repo.CreateTransaction(s.ctx(), tx)
	s.ErrorIs(err, store.ErrInvalidInput)
}

func (s *RepositorySuite) TestSaveTransaction() {
	tx := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusDraft, base))

	tx.ExternalID = "pref-123"
	tx.Status = domain.TxStatusCreated
	tx.Detail = "waiting for user"
	saved, err := s.repo.SaveTransaction(s.ctx(), *tx)
	s.Require().NoError(err)
	s.Equal("pref-123", saved.ExternalID)
	s.Equal(domain.TxStatusCreated, saved.Status)

	missing := s.randomTransaction(domain.TxStatusDraft, base)
	_, err = s.repo.SaveTransaction(s.ctx(), missing)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RepositorySuite) TestTransitionTransactionGuard() {
	tx := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusCreated, base))

	rejected, err := s.repo.TransitionTransaction(s.ctx(), tx.ID, domain.TransactionUpdate{
		Status: domain.TxStatusRejected, Detail: "cc_rejected_other_reason", Amount: 0, Currency: "ARS",
	})
	s.Require().NoError(err)
	s.Equal(domain.TxStatusRejected, rejected.Status)
	s.Equal("cc_rejected_other_reason", rejected.Detail)

	approved, err := s.repo.TransitionTransaction(s.ctx(), tx.ID, domain.TransactionUpdate{
		Status: domain.TxStatusApproved, Detail: "accredited", Amount: 1200, Currency: "ARS",
		PaymentMethod: "visa", PaymentType: "credit_card",
	})
	s.Require().NoError(err)
	s.Equal(domain.TxStatusApproved, approved.Status)
	s.Equal(int64(1200), approved.Amount)
	s.Equal("visa", approved.PaymentMethod)

	_, err = s.repo.TransitionTransaction(s.ctx(), tx.ID, domain.TransactionUpdate{
		Status: domain.TxStatusRejected, Detail: "late", Amount: 1, Currency: "ARS",
	})
	s.ErrorIs(err, store.ErrTransitionRejected)

	stored, err := s.repo.FindTransactionByID(s.ctx(), tx.ID)
	s.Require().NoError(err)
	s.Equal(domain.TxStatusApproved, stored.Status)
	s.Equal("accredited", stored.Detail)

	_, err = s.repo.TransitionTransaction(s.ctx(), uuid.NewString(), domain.TransactionUpdate{Status: domain.TxStatusApproved})
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RepositorySuite) TestTransitionTransactionSingleWinner() {
	tx := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusCreated, base))

	const workers = 16
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.repo.TransitionTransaction(context.Background(), tx.ID, domain.TransactionUpdate{
				Status: domain.TxStatusApproved, Detail: "accredited", Amount: tx.Amount, Currency: "ARS",
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrTransitionRejected):
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(1, wins.Load())
	s.EqualValues(workers-1, losses.Load())
}

func (s *RepositorySuite) TestUpdateTransactionStatus() {
	tx := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusCreated, base))

	updated, err := s.repo.UpdateTransactionStatus(s.ctx(), tx.ID, domain.TxStatusPending)
	s.Require().NoError(err)
	s.Equal(domain.TxStatusPending, updated.Status)

	_, err = s.repo.UpdateTransactionStatus(s.ctx(), tx.ID, "bogus")
	s.ErrorIs(err, store.ErrInvalidInput)

	_, err = s.repo.UpdateTransactionStatus(s.ctx(), uuid.NewString(), domain.TxStatusPending)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RepositorySuite) TestUpdateTransactionStatusKeepsSettled() {
	for _, settled := range []domain.TransactionStatus{domain.TxStatusApproved, domain.TxStatusRejected} {
		tx := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusCreated, base))
		_, err := s.repo.TransitionTransaction(s.ctx(), tx.ID, domain.TransactionUpdate{
			Status: settled, Detail: "settled", Amount: tx.Amount, Currency: "ARS",
		})
		s.Require().NoError(err)

		_, err = s.repo.UpdateTransactionStatus(s.ctx(), tx.ID, domain.TxStatusPending)
		s.ErrorIs(err, store.ErrTransitionRejected, settled)

		stored, err := s.repo.FindTransactionByID(s.ctx(), tx.ID)
		s.Require().NoError(err)
		s.Equal(settled, stored.Status)
		s.Equal("settled", stored.Detail)
	}
}

func (s *RepositorySuite) TestCreateOrderOncePerTransaction() {
	tx := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusApproved, base))
	want := s.randomOrder(tx.ID, domain.OrderStatusNew, 1500, base)
	s.mustCreateOrder(want)

	_, err := s.repo.CreateOrder(s.ctx(), s.randomOrder(tx.ID, domain.OrderStatusNew, 1500, base))
	s.ErrorIs(err, store.ErrConflict)

	got, err := s.repo.FindOrderByTransaction(s.ctx(), tx.ID)
	s.Require().NoError(err)
	if diff := cmp.Diff(want, *got, timeOpts); diff != "" {
		s.Failf("order mismatch", "(-want +got):\n%s", diff)
	}

	byID, err := s.repo.FindOrderByID(s.ctx(), want.ID)
	s.Require().NoError(err)
	s.Equal(want.Number, byID.Number)

	_, err = s.repo.FindOrderByID(s.ctx(), uuid.NewString())
	s.ErrorIs(err, store.ErrNotFound)
	_, err = s.repo.FindOrderByTransaction(s.ctx(), uuid.NewString())
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RepositorySuite) TestCreateOrderRejectsInvalid() {
	tx := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusApproved, base))

	order := s.randomOrder(tx.ID, "shipped", 100, base)
	_, err := s.repo.CreateOrder(s.ctx(), order)
	s.ErrorIs(err, store.ErrInvalidInput)

	order = s.randomOrder("", domain.OrderStatusNew, 100, base)
	_, err = s.repo.CreateOrder(s.ctx(), order)
	s.ErrorIs(err, store.ErrInvalidInput)
}

func (s *RepositorySuite) TestUpdateOrder() {
	order := s.seedOrder(domain.OrderStatusNew, 100, "", base)

	updated, err := s.repo.UpdateOrder(s.ctx(), order.ID, domain.OrderPatch{Status: lo.ToPtr(domain.OrderStatusDone)})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusDone, updated.Status)
	s.Equal(order.Comment, updated.Comment)
	s.Equal(order.Customer, updated.Customer)

	customer := domain.Customer{Email: "new@shop.test", Name: s.faker.Name(), Address: domain.Address{Street: "Main", Zip: "2000"}}
	shipment := domain.Shipment{Cost: 450, Name: "Front desk", Address: domain.Address{Street: "Main", Zip: "2000"}}
	updated, err = s.repo.UpdateOrder(s.ctx(), order.ID, domain.OrderPatch{
		Comment:  lo.ToPtr("leave at the door"),
		Customer: &customer,
		Shipment: &shipment,
	})
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusDone, updated.Status)
	s.Equal("leave at the door", updated.Comment)

	stored, err := s.repo.FindOrderByID(s.ctx(), order.ID)
	s.Require().NoError(err)
	s.Equal(customer, stored.Customer)
	s.Equal(shipment, stored.Shipment)
	s.Equal(order.Items, stored.Items)

	_, err = s.repo.UpdateOrder(s.ctx(), order.ID, domain.OrderPatch{Status: lo.ToPtr(domain.OrderStatus("lost"))})
	s.ErrorIs(err, store.ErrInvalidInput)

	_, err = s.repo.UpdateOrder(s.ctx(), order.ID, domain.OrderPatch{})
	s.ErrorIs(err, store.ErrInvalidInput)

	_, err = s.repo.UpdateOrder(s.ctx(), uuid.NewString(), domain.OrderPatch{Status: lo.ToPtr(domain.OrderStatusDone)})
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RepositorySuite) TestDeleteOrder() {
	order := s.seedOrder(domain.OrderStatusNew, 100, "", base)

	s.Require().NoError(s.repo.DeleteOrder(s.ctx(), order.ID))

	_, err := s.repo.FindOrderByID(s.ctx(), order.ID)
	s.ErrorIs(err, store.ErrNotFound)
	_, err = s.repo.FindOrderByTransaction(s.ctx(), order.TransactionID)
	s.ErrorIs(err, store.ErrNotFound)

	// The transaction survives and can carry a new order.
	_, err = s.repo.FindTransactionByID(s.ctx(), order.TransactionID)
	s.Require().NoError(err)
	s.mustCreateOrder(s.randomOrder(order.TransactionID, domain.OrderStatusNew, 100, base))

	s.ErrorIs(s.repo.DeleteOrder(s.ctx(), order.ID), store.ErrNotFound)
}

func (s *RepositorySuite) TestListOrders() {
	first := s.seedOrder(domain.OrderStatusNew, 300, "ana@shop.test", base.AddDate(0, 0, -2))
	second := s.seedOrder(domain.OrderStatusDone, 100, "bruno@shop.test", base.AddDate(0, 0, -1))
	third := s.seedOrder(domain.OrderStatusNew, 200, "ana.maria@other.test", base)

	ids := func(orders []domain.Order) []string {
		return lo.Map(orders, func(o domain.Order, _ int) string { return o.ID })
	}

	all, err := s.repo.ListOrders(s.ctx(), domain.OrderFilter{})
	s.Require().NoError(err)
	s.Equal([]string{third.ID, second.ID, first.ID}, ids(all))

	byTotal, err := s.repo.ListOrders(s.ctx(), domain.OrderFilter{Page: domain.Page{Sort: "total"}})
	s.Require().NoError(err)
	s.Equal([]string{second.ID, third.ID, first.ID}, ids(byTotal))

	paged, err := s.repo.ListOrders(s.ctx(), domain.OrderFilter{Page: domain.Page{Offset: 1, Size: 1, Sort: "-date"}})
	s.Require().NoError(err)
	s.Equal([]string{second.ID}, ids(paged))

	news, err := s.repo.ListOrders(s.ctx(), domain.OrderFilter{Status: domain.OrderStatusNew})
	s.Require().NoError(err)
	s.Equal([]string{third.ID, first.ID}, ids(news))

	ana, err := s.repo.ListOrders(s.ctx(), domain.OrderFilter{Customer: "ana"})
	s.Require().NoError(err)
	s.ElementsMatch([]string{first.ID, third.ID}, ids(ana))

	dates, err := domain.ParseDateRange("2024-03-09", "2024-03-09")
	s.Require().NoError(err)
	oneDay, err := s.repo.ListOrders(s.ctx(), domain.OrderFilter{Dates: dates})
	s.Require().NoError(err)
	s.Equal([]string{second.ID}, ids(oneDay))
}

func (s *RepositorySuite) TestListTransactions() {
	old := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusApproved, base.AddDate(0, 0, -3)))
	mid := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusPending, base.AddDate(0, 0, -1)))
	latest := s.mustCreateTransaction(s.randomTransaction(domain.TxStatusApproved, base))

	ids := func(txs []domain.Transaction) []string {
		return lo.Map(txs, func(tx domain.Transaction, _ int) string { return tx.ID })
	}

	all, err := s.repo.ListTransactions(s.ctx(), domain.TransactionFilter{})
	s.Require().NoError(err)
	s.Equal([]string{latest.ID, mid.ID, old.ID}, ids(all))

	approved, err := s.repo.ListTransactions(s.ctx(), domain.TransactionFilter{
		Page:   domain.Page{Sort: "date"},
		Status: domain.TxStatusApproved,
	})
	s.Require().NoError(err)
	s.Equal([]string{old.ID, latest.ID}, ids(approved))

	dates, err := domain.ParseDateRange("2024-03-08", "")
	s.Require().NoError(err)
	recent, err := s.repo.ListTransactions(s.ctx(), domain.TransactionFilter{Dates: dates, Page: domain.Page{Size: 10}})
	s.Require().NoError(err)
	s.Equal([]string{latest.ID, mid.ID}, ids(recent))
}

func (s *RepositorySuite) TestAggregations() {
	dayOne := base.AddDate(0, 0, -1)
	s.seedOrder(domain.OrderStatusNew, 100, "", dayOne)
	s.seedOrder(domain.OrderStatusDone, 250, "", dayOne.Add(2*time.Hour))
	s.seedOrder(domain.OrderStatusCancelled, 999, "", dayOne)
	s.seedOrder(domain.OrderStatusPending, 50, "", base)
	s.seedOrder(domain.OrderStatusNew, 70, "", base.AddDate(0, -2, 0))

	from := base.AddDate(0, 0, -7)
	to := base.Add(time.Hour)

	sales, err := s.repo.DailySales(s.ctx(), from, to)
	s.Require().NoError(err)
	s.Equal([]domain.DailySales{
		{Day: time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC), Count: 2, Total: 350},
		{Day: time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC), Count: 1, Total: 50},
	}, lo.Map(sales, func(d domain.DailySales, _ int) domain.DailySales {
		d.Day = d.Day.UTC()
		return d
	}))

	byStatus, err := s.repo.CountOrdersByStatus(s.ctx(), from, to)
	s.Require().NoError(err)
	s.ElementsMatch([]domain.StatusStats{
		{Status: domain.OrderStatusNew, Count: 1},
		{Status: domain.OrderStatusDone, Count: 1},
		{Status: domain.OrderStatusCancelled, Count: 1},
		{Status: domain.OrderStatusPending, Count: 1},
	}, byStatus)

	approvedIn := s.randomTransaction(domain.TxStatusApproved, base.Add(-time.Hour))
	approvedIn.Amount = 400
	s.mustCreateTransaction(approvedIn)
	approvedOut := s.randomTransaction(domain.TxStatusApproved, base.AddDate(0, -1, 0))
	approvedOut.Amount = 800
	s.mustCreateTransaction(approvedOut)

	sum, err := s.repo.SumApprovedAmount(s.ctx(), from, to)
	s.Require().NoError(err)
	s.Equal(int64(400), sum)

	empty, err := s.repo.SumApprovedAmount(s.ctx(), base.AddDate(1, 0, 0), base.AddDate(1, 1, 0))
	s.Require().NoError(err)
	s.Zero(empty)
}
