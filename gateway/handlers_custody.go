package gateway

import (
	"github.com/gofiber/fiber/v3"

	"github.com/meridianbank/ledger"
)

func (s *Server) createHolding(c fiber.Ctx) error {
	var in CreateHoldingSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	h, err := in.Holding()
	if err != nil {
		return renderError(c, err)
	}
	h, err = s.eng.ProvisionHolding(c.RequestCtx(), h)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(h)
}

func (s *Server) getHolding(c fiber.Ctx) error {
	h, err := s.eng.AssetHolding(c.RequestCtx(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(h)
}

func (s *Server) revalueHolding(c fiber.Ctx) error {
	var in MoveFundsSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	valuation, err := in.Amount.Money()
	if err != nil {
		return renderError(c, err)
	}
	return s.submit(c, ledger.NewRevalue(in.Key, c.Get(callerHeader), c.Params("id"), valuation))
}

func (s *Server) secureCustody(c fiber.Ctx) error {
	var in SecureCustodySchema
	if err := bind(c, &in); err != nil {
		return err
	}
	h, err := in.Holding.Holding()
	if err != nil {
		return renderError(c, err)
	}
	svc := ledger.NewCustodyService(s.eng)
	tx, err := svc.SecureCustody(c.RequestCtx(), in.Key, c.Get(callerHeader), h)
	if err != nil {
		return renderError(c, err)
	}
	status := fiber.StatusOK
	if tx.Status == ledger.StatusRejected {
		status = reasonStatus(tx.Reason)
	}
	return c.Status(status).JSON(transactionSchema(tx))
}

func (s *Server) issueReceipt(c fiber.Ctx) error {
	var in KeyedSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	return s.submit(c, ledger.NewCustodyIssue(in.Key, c.Get(callerHeader), c.Params("id")))
}

func (s *Server) getReceipt(c fiber.Ctx) error {
	r, err := s.eng.CustodyReceipt(c.RequestCtx(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(r)
}

func (s *Server) redeemReceipt(c fiber.Ctx) error {
	var in KeyedSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	return s.submit(c, ledger.NewCustodyRedeem(in.Key, c.Get(callerHeader), c.Params("id")))
}

func (s *Server) mintToken(c fiber.Ctx) error {
	var in KeyedSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	return s.submit(c, ledger.NewTokenize(in.Key, c.Get(callerHeader), c.Params("id")))
}

func (s *Server) getToken(c fiber.Ctx) error {
	tok, err := s.eng.DigitalToken(c.RequestCtx(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(tok)
}

func (s *Server) burnToken(c fiber.Ctx) error {
	var in KeyedSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	return s.submit(c, ledger.NewBurnToken(in.Key, c.Get(callerHeader), c.Params("id")))
}
