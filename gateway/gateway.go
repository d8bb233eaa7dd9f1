// Package gateway exposes the ledger engine over HTTP. It is a thin
// translation layer: every mutation is a transaction submitted to the
// engine, and the engine's reason codes are mapped to HTTP statuses.
package gateway

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/meridianbank/ledger"
)

// callerHeader carries the authenticated caller identity. Authentication
// itself happens upstream; an absent header means a trusted internal caller.
const callerHeader = "X-Caller-Id"

// Server wires the engine into a fiber application.
type Server struct {
	app    *fiber.App
	eng    *ledger.Engine
	logger logrus.FieldLogger
}

// NewServer builds the HTTP gateway over an engine.
func NewServer(eng *ledger.Engine, logger logrus.FieldLogger) *Server {
	s := &Server{
		app:    fiber.New(),
		eng:    eng,
		logger: logger,
	}
	s.app.Use(s.requestLogger())
	s.routes()
	return s
}

// Listen serves the gateway until the listener fails.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// App exposes the underlying fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes() {
	app := s.app

	app.Post("/v1/accounts", s.createAccount)
	app.Get("/v1/accounts", s.listAccounts)
	app.Get("/v1/accounts/:id", s.getAccount)
	app.Post("/v1/accounts/:id/status", s.setAccountStatus)
	app.Post("/v1/accounts/:id/deposits", s.deposit)
	app.Post("/v1/accounts/:id/withdrawals", s.withdraw)
	app.Post("/v1/transfers", s.transfer)

	app.Post("/v1/holdings", s.createHolding)
	app.Get("/v1/holdings/:id", s.getHolding)
	app.Post("/v1/holdings/:id/valuations", s.revalueHolding)
	app.Post("/v1/custody", s.secureCustody)
	app.Post("/v1/holdings/:id/receipts", s.issueReceipt)
	app.Get("/v1/receipts/:id", s.getReceipt)
	app.Post("/v1/receipts/:id/redemption", s.redeemReceipt)
	app.Post("/v1/holdings/:id/tokens", s.mintToken)
	app.Get("/v1/tokens/:id", s.getToken)
	app.Post("/v1/tokens/:id/burn", s.burnToken)

	app.Post("/v1/trusts", s.createTrust)
	app.Get("/v1/trusts/:id", s.getTrust)
	app.Post("/v1/trusts/:id/allocations", s.allocateTrust)

	app.Get("/v1/transactions/:key", s.getTransaction)
	app.Get("/v1/entities/:id/transactions", s.entityTransactions)
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		entry := s.logger.WithFields(logrus.Fields{
			"method":  c.Method(),
			"path":    c.Path(),
			"status":  c.Response().StatusCode(),
			"elapsed": time.Since(start).String(),
		})
		if caller := c.Get(callerHeader); caller != "" {
			entry = entry.WithField("caller", caller)
		}
		if err != nil {
			entry.WithError(err).Warn("request failed")
			return err
		}
		entry.Info("request served")
		return nil
	}
}

// submit sends a request to the engine and renders the decided transaction.
// Committed transactions answer 200, rejections answer the status their
// reason code maps to, with the transaction body in both cases.
func (s *Server) submit(c fiber.Ctx, req ledger.Request) error {
	tx, err := s.eng.Submit(c.RequestCtx(), req)
	if err != nil {
		return renderError(c, err)
	}
	status := fiber.StatusOK
	if tx.Status == ledger.StatusRejected {
		status = reasonStatus(tx.Reason)
	}
	return c.Status(status).JSON(transactionSchema(tx))
}

// reasonStatus maps a rejection reason code to an HTTP status.
func reasonStatus(reason ledger.Reason) int {
	switch reason {
	case ledger.ReasonNotFound:
		return fiber.StatusNotFound
	case ledger.ReasonNotOwner:
		return fiber.StatusForbidden
	case ledger.ReasonInvalidAmount, ledger.ReasonCurrencyMismatch:
		return fiber.StatusUnprocessableEntity
	case ledger.ReasonReceiptAllocation:
		return fiber.StatusServiceUnavailable
	default:
		// insufficient_funds, account_not_active, custody_held,
		// already_tokenized, invalid_state: the request was well formed
		// but conflicts with current state.
		return fiber.StatusConflict
	}
}

// renderError maps an engine error (not a recorded rejection) to a response.
func renderError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyExists):
		status = fiber.StatusConflict
	case errors.Is(err, ledger.ErrInvalidRequest), errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrCurrencyMismatch):
		status = fiber.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidState):
		status = fiber.StatusConflict
	case ledger.IsRetryable(err):
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(ErrorSchema{Reason: string(ledger.ReasonOf(err)), Message: err.Error()})
}

// bind decodes and validates a request body. The returned *fiber.Error is
// rendered by fiber's error handler with its status code.
func bind(c fiber.Ctx, v any) error {
	if err := c.Bind().Body(v); err != nil {
		return fiber.ErrBadRequest
	}
	if err := validate.Struct(v); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return nil
}
