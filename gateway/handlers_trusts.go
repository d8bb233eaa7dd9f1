package gateway

import (
	"github.com/gofiber/fiber/v3"

	"github.com/meridianbank/ledger"
)

func (s *Server) createTrust(c fiber.Ctx) error {
	var in CreateTrustSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	trust, err := s.eng.ProvisionTrust(c.RequestCtx(), in.ID, in.Beneficiary, in.Type, in.Currency)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(trust)
}

func (s *Server) getTrust(c fiber.Ctx) error {
	trust, err := s.eng.TrustRecord(c.RequestCtx(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(trust)
}

func (s *Server) allocateTrust(c fiber.Ctx) error {
	var in TrustAllocateSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	amount := ledger.Money{}
	if in.Amount != nil {
		var err error
		if amount, err = in.Amount.Money(); err != nil {
			return renderError(c, err)
		}
	}
	req := ledger.NewTrustAllocate(in.Key, c.Get(callerHeader), c.Params("id"), in.From, amount, in.Holdings...)
	return s.submit(c, req)
}
