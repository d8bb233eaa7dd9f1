package gateway

import (
	"github.com/gofiber/fiber/v3"

	"github.com/meridianbank/ledger"
)

func (s *Server) createAccount(c fiber.Ctx) error {
	var in CreateAccountSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	acc, err := s.eng.ProvisionAccount(c.RequestCtx(), in.ID, in.Owner, in.Currency)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(acc)
}

func (s *Server) getAccount(c fiber.Ctx) error {
	acc, err := s.eng.Account(c.RequestCtx(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(acc)
}

func (s *Server) listAccounts(c fiber.Ctx) error {
	accounts, err := s.eng.Accounts(c.RequestCtx())
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(accounts)
}

func (s *Server) setAccountStatus(c fiber.Ctx) error {
	var in AccountStatusSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	acc, err := s.eng.SetAccountStatus(c.RequestCtx(), c.Params("id"), ledger.AccountStatus(in.Status))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(acc)
}

func (s *Server) deposit(c fiber.Ctx) error {
	var in MoveFundsSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	amount, err := in.Amount.Money()
	if err != nil {
		return renderError(c, err)
	}
	return s.submit(c, ledger.NewDeposit(in.Key, c.Get(callerHeader), c.Params("id"), amount))
}

func (s *Server) withdraw(c fiber.Ctx) error {
	var in MoveFundsSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	amount, err := in.Amount.Money()
	if err != nil {
		return renderError(c, err)
	}
	return s.submit(c, ledger.NewWithdrawal(in.Key, c.Get(callerHeader), c.Params("id"), amount))
}

func (s *Server) transfer(c fiber.Ctx) error {
	var in TransferSchema
	if err := bind(c, &in); err != nil {
		return err
	}
	amount, err := in.Amount.Money()
	if err != nil {
		return renderError(c, err)
	}
	return s.submit(c, ledger.NewTransfer(in.Key, c.Get(callerHeader), in.From, in.To, amount))
}

func (s *Server) getTransaction(c fiber.Ctx) error {
	tx, err := s.eng.TransactionByKey(c.RequestCtx(), c.Params("key"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(transactionSchema(tx))
}

func (s *Server) entityTransactions(c fiber.Ctx) error {
	txs, err := s.eng.TransactionsFor(c.RequestCtx(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	out := make([]TransactionSchema, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionSchema(tx))
	}
	return c.JSON(out)
}
