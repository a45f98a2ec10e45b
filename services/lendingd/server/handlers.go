package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lendledger/core/host"
	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/native/bank"
	"lendledger/native/lending"
)

const (
	maxBodyBytes     = 1 << 20
	defaultPageLimit = 100
	maxPageLimit     = 500
)

func decode(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func loanID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: loan id must be a positive integer", errBadRequest)
	}
	return id, nil
}

func addressParam(r *http.Request) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(chi.URLParam(r, "addr"))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return addr, nil
}

func uintQuery(r *http.Request, key string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", errBadRequest, key)
	}
	return v, nil
}

// at resolves the height a query is evaluated at: ?at= or the clock.
func (s *Server) at(r *http.Request) (uint64, error) {
	return uintQuery(r, "at", s.clock.Height())
}

// query runs fn under the read lock so it observes whole transactions only.
func (s *Server) query(w http.ResponseWriter, fn func() (interface{}, error)) {
	s.mu.RLock()
	out, err := fn()
	s.mu.RUnlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// loanQuery is the common shape of per-loan queries evaluated at a height.
func (s *Server) loanQuery(fn func(id, now uint64) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := loanID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		now, err := s.at(r)
		if err != nil {
			writeError(w, err)
			return
		}
		s.query(w, func() (interface{}, error) { return fn(id, now) })
	}
}

// --- queries ---

type statusResponse struct {
	Height         uint64      `json:"height"`
	TotalLoans     uint64      `json:"totalLoans"`
	TotalLiquidity types.Money `json:"totalLiquidity"`
	ProtocolFees   types.Money `json:"protocolFees"`
	Owner          string      `json:"owner,omitempty"`
	Paused         bool        `json:"paused"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.query(w, func() (interface{}, error) {
		total, err := s.engine.GetTotalLoans()
		if err != nil {
			return nil, err
		}
		liquidity, err := s.engine.GetTotalLiquidity()
		if err != nil {
			return nil, err
		}
		fees, err := s.engine.GetProtocolFees()
		if err != nil {
			return nil, err
		}
		owner, err := s.engine.GetOwner()
		if err != nil {
			return nil, err
		}
		resp := statusResponse{
			Height:         s.clock.Height(),
			TotalLoans:     total,
			TotalLiquidity: liquidity,
			ProtocolFees:   fees,
			Paused:         s.pauses.IsPaused("lending"),
		}
		if !owner.IsZero() {
			resp.Owner = owner.String()
		}
		return resp, nil
	})
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	from, err := uintQuery(r, "from", 1)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := uintQuery(r, "limit", defaultPageLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit == 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	s.query(w, func() (interface{}, error) {
		loans, err := s.engine.GetLoans(from, limit)
		if err != nil {
			return nil, err
		}
		if loans == nil {
			loans = []*lending.Loan{}
		}
		return loans, nil
	})
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.query(w, func() (interface{}, error) { return s.engine.GetLoan(id) })
}

type repaymentQuote struct {
	Height      uint64      `json:"height"`
	Total       types.Money `json:"total"`
	DiscountBps uint64      `json:"discountBps"`
	Discount    types.Money `json:"discount"`
	LateFees    types.Money `json:"lateFees"`
	Interest    types.Money `json:"accruedInterest"`
}

func (s *Server) repaymentQuote(w http.ResponseWriter, r *http.Request) {
	s.loanQuery(func(id, now uint64) (interface{}, error) {
		total, err := s.engine.CalculateFullRepayment(id, now)
		if err != nil {
			return nil, err
		}
		bps, discount, err := s.engine.GetEarlyRepaymentDiscount(id, now)
		if err != nil {
			return nil, err
		}
		late, err := s.engine.CalculateCurrentLateFees(id, now)
		if err != nil {
			return nil, err
		}
		interest, err := s.engine.CalculateAccruedInterest(id, now)
		if err != nil {
			return nil, err
		}
		return repaymentQuote{Height: now, Total: total, DiscountBps: bps, Discount: discount, LateFees: late, Interest: interest}, nil
	})(w, r)
}

func (s *Server) extensionInfo(w http.ResponseWriter, r *http.Request) {
	s.loanQuery(func(id, now uint64) (interface{}, error) { return s.engine.GetLoanExtensionInfo(id, now) })(w, r)
}

type paymentResponse struct {
	lending.PaymentInfo
	Overdue bool `json:"Overdue"`
}

func (s *Server) paymentInfo(w http.ResponseWriter, r *http.Request) {
	s.loanQuery(func(id, now uint64) (interface{}, error) {
		info, err := s.engine.GetLoanPaymentInfo(id, now)
		if err != nil {
			return nil, err
		}
		overdue, err := s.engine.IsLoanOverdue(id, now)
		if err != nil {
			return nil, err
		}
		return paymentResponse{PaymentInfo: info, Overdue: overdue}, nil
	})(w, r)
}

func (s *Server) lateFeeInfo(w http.ResponseWriter, r *http.Request) {
	s.loanQuery(func(id, now uint64) (interface{}, error) { return s.engine.GetLateFeeInfo(id, now) })(w, r)
}

type refinanceResponse struct {
	lending.RefinanceInfo
	History []lending.RefinanceRecord `json:"History"`
}

func (s *Server) refinanceInfo(w http.ResponseWriter, r *http.Request) {
	s.loanQuery(func(id, now uint64) (interface{}, error) {
		info, err := s.engine.GetLoanRefinanceInfo(id, now)
		if err != nil {
			return nil, err
		}
		history, err := s.engine.GetRefinanceHistory(id)
		if err != nil {
			return nil, err
		}
		if history == nil {
			history = []lending.RefinanceRecord{}
		}
		return refinanceResponse{RefinanceInfo: info, History: history}, nil
	})(w, r)
}

func (s *Server) interestInfo(w http.ResponseWriter, r *http.Request) {
	s.loanQuery(func(id, now uint64) (interface{}, error) { return s.engine.GetCompoundInterestInfo(id, now) })(w, r)
}

func (s *Server) paymentStructureInfo(w http.ResponseWriter, r *http.Request) {
	s.loanQuery(func(id, now uint64) (interface{}, error) { return s.engine.GetPaymentStructureInfo(id, now) })(w, r)
}

func (s *Server) loanEvents(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.archive == nil {
		http.Error(w, "event archive disabled", http.StatusNotFound)
		return
	}
	records, err := s.archive.ByLoan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	type eventView struct {
		Seq        uint64            `json:"seq"`
		Type       string            `json:"type"`
		Block      uint64            `json:"block"`
		Actor      string            `json:"actor,omitempty"`
		Attributes map[string]string `json:"attributes"`
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		out = append(out, eventView{Seq: rec.Seq, Type: rec.Type, Block: rec.Block, Actor: rec.Actor, Attributes: rec.Attrs()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) userProfile(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.query(w, func() (interface{}, error) { return s.engine.GetUserProfile(addr) })
}

type balanceResponse struct {
	Address string      `json:"address"`
	Balance types.Money `json:"balance"`
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.query(w, func() (interface{}, error) {
		bal, err := bank.New(s.store).Balance(addr)
		if err != nil {
			return nil, err
		}
		return balanceResponse{Address: addr.String(), Balance: bal}, nil
	})
}

// --- loan lifecycle ---

type createLoanRequest struct {
	Amount     types.Money `json:"amount"`
	RateBps    uint64      `json:"rateBps"`
	Duration   uint64      `json:"duration"`
	Collateral types.Money `json:"collateral"`
}

type createLoanResult struct {
	LoanID uint64 `json:"loanId"`
}

func (s *Server) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, r, "create_loan", types.Money{}, func(h lending.Host) (interface{}, error) {
		id, err := s.engine.CreateLoan(h, req.Amount, req.RateBps, req.Duration, req.Collateral)
		if err != nil {
			return nil, err
		}
		return createLoanResult{LoanID: id}, nil
	})
}

// valueRequest carries the value attached to a payable call. When omitted the
// server quotes the amount the engine expects at the current height.
type valueRequest struct {
	Value *types.Money `json:"value"`
}

// payable runs call with the request value, or when none is given, with the
// quote at the height the call executes at.
func (s *Server) payable(w http.ResponseWriter, r *http.Request, op string, quote func(id, now uint64) (types.Money, error), call func(h lending.Host, id uint64) error) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req valueRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	value := func(height uint64) (types.Money, error) {
		if req.Value != nil {
			return *req.Value, nil
		}
		return quote(id, height)
	}
	s.submitQuoted(w, r, op, value, func(h lending.Host) (interface{}, error) {
		return nil, call(h, id)
	})
}

func (s *Server) fundLoan(w http.ResponseWriter, r *http.Request) {
	s.payable(w, r, "fund_loan",
		func(id, _ uint64) (types.Money, error) {
			loan, err := s.engine.GetLoan(id)
			if err != nil {
				return types.Money{}, err
			}
			return loan.Amount, nil
		},
		s.engine.FundLoan)
}

func (s *Server) repayLoan(w http.ResponseWriter, r *http.Request) {
	s.payable(w, r, "repay_loan", s.engine.CalculateFullRepayment, s.engine.RepayLoan)
}

func (s *Server) extendLoan(w http.ResponseWriter, r *http.Request) {
	s.payable(w, r, "extend_loan",
		func(id, _ uint64) (types.Money, error) { return s.engine.CalculateExtensionFee(id) },
		s.engine.ExtendLoan)
}

type partialRepayRequest struct {
	Amount types.Money `json:"amount"`
}

func (s *Server) partialRepay(w http.ResponseWriter, r *http.Request) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req partialRepayRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, r, "partial_repay", req.Amount, func(h lending.Host) (interface{}, error) {
		return nil, s.engine.PartialRepay(h, id, req.Amount)
	})
}

// loanCall decodes req and runs a non-payable per-loan operation.
func (s *Server) loanCall(w http.ResponseWriter, r *http.Request, op string, req interface{}, call func(h lending.Host, id uint64) error) {
	id, err := loanID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if req != nil {
		if err := decode(r, req); err != nil {
			writeError(w, err)
			return
		}
	}
	s.submit(w, r, op, types.Money{}, func(h lending.Host) (interface{}, error) {
		return nil, call(h, id)
	})
}

type rateRequest struct {
	BaseRateBps uint64 `json:"baseRateBps"`
	Reason      string `json:"reason"`
}

func (s *Server) refinanceLoan(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	s.loanCall(w, r, "refinance_loan", &req, func(h lending.Host, id uint64) error {
		return s.engine.RefinanceLoan(h, id, req.BaseRateBps)
	})
}

func (s *Server) convertToVariable(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	s.loanCall(w, r, "convert_to_variable_rate", &req, func(h lending.Host, id uint64) error {
		return s.engine.ConvertToVariableRate(h, id, req.BaseRateBps)
	})
}

func (s *Server) adjustRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	s.loanCall(w, r, "adjust_interest_rate", &req, func(h lending.Host, id uint64) error {
		return s.engine.AdjustInterestRate(h, id, req.BaseRateBps, lending.ParseAdjustmentReason(req.Reason))
	})
}

type riskRequest struct {
	RiskMultiplier uint64 `json:"riskMultiplier"`
}

func (s *Server) updateRisk(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	s.loanCall(w, r, "update_risk_multiplier", &req, func(h lending.Host, id uint64) error {
		return s.engine.UpdateRiskMultiplier(h, id, req.RiskMultiplier)
	})
}

type compoundRequest struct {
	Frequency string `json:"frequency"`
}

func (s *Server) convertToCompound(w http.ResponseWriter, r *http.Request) {
	var req compoundRequest
	s.loanCall(w, r, "convert_to_compound", &req, func(h lending.Host, id uint64) error {
		freq, ok := lending.ParseCompoundFrequency(strings.ToLower(strings.TrimSpace(req.Frequency)))
		if !ok {
			return fmt.Errorf("%w: unknown compound frequency %q", errBadRequest, req.Frequency)
		}
		return s.engine.ConvertToCompoundInterest(h, id, freq)
	})
}

func (s *Server) switchToSimple(w http.ResponseWriter, r *http.Request) {
	s.loanCall(w, r, "switch_to_simple", nil, s.engine.SwitchToSimpleInterest)
}

type interestOnlyRequest struct {
	Periods      uint64 `json:"periods"`
	PeriodBlocks uint64 `json:"periodBlocks"`
}

func (s *Server) setInterestOnly(w http.ResponseWriter, r *http.Request) {
	var req interestOnlyRequest
	s.loanCall(w, r, "set_interest_only_periods", &req, func(h lending.Host, id uint64) error {
		return s.engine.SetInterestOnlyPeriods(h, id, req.Periods, req.PeriodBlocks)
	})
}

func (s *Server) switchToPrincipalAndInterest(w http.ResponseWriter, r *http.Request) {
	s.loanCall(w, r, "switch_to_principal_and_interest", nil, s.engine.SwitchToPrincipalAndInterest)
}

type lateFeeRequest struct {
	RateBps    uint64 `json:"rateBps"`
	MaxRateBps uint64 `json:"maxRateBps"`
}

func (s *Server) configureLateFees(w http.ResponseWriter, r *http.Request) {
	var req lateFeeRequest
	s.loanCall(w, r, "configure_late_fees", &req, func(h lending.Host, id uint64) error {
		return s.engine.ConfigureLateFees(h, id, req.RateBps, req.MaxRateBps)
	})
}

func (s *Server) accrue(w http.ResponseWriter, r *http.Request) {
	s.loanCall(w, r, "accrue", nil, s.engine.Accrue)
}

func (s *Server) markDefault(w http.ResponseWriter, r *http.Request) {
	s.loanCall(w, r, "mark_default", nil, s.engine.MarkDefault)
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	s.loanCall(w, r, "liquidate", nil, s.engine.Liquidate)
}

// --- administration ---

func (s *Server) initOwner(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, "init_owner", types.Money{}, func(h lending.Host) (interface{}, error) {
		return nil, s.engine.InitOwner(h)
	})
}

type blacklistRequest struct {
	Address     crypto.Address `json:"address"`
	Blacklisted bool           `json:"blacklisted"`
}

func (s *Server) setBlacklisted(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, r, "set_blacklisted", types.Money{}, func(h lending.Host) (interface{}, error) {
		return nil, s.engine.SetBlacklisted(h, req.Address, req.Blacklisted)
	})
}

type creditScoreRequest struct {
	Address crypto.Address `json:"address"`
	Score   uint64         `json:"score"`
}

func (s *Server) setCreditScore(w http.ResponseWriter, r *http.Request) {
	var req creditScoreRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, r, "set_credit_score", types.Money{}, func(h lending.Host) (interface{}, error) {
		return nil, s.engine.SetCreditScore(h, req.Address, req.Score)
	})
}

type withdrawRequest struct {
	To     crypto.Address `json:"to"`
	Amount types.Money    `json:"amount"`
}

func (s *Server) withdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, r, "withdraw_protocol_fees", types.Money{}, func(h lending.Host) (interface{}, error) {
		return nil, s.engine.WithdrawProtocolFees(h, req.To, req.Amount)
	})
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	module := strings.TrimSpace(req.Module)
	if module == "" {
		module = "lending"
	}
	if err := s.requireOwner(r); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	s.pauses.Set(module, req.Paused)
	s.mu.Unlock()
	s.logger.Warn("module pause toggled", "module", module, "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]interface{}{"module": module, "paused": req.Paused})
}

type advanceRequest struct {
	Blocks uint64 `json:"blocks"`
	To     uint64 `json:"to"`
}

func (s *Server) advanceClock(w http.ResponseWriter, r *http.Request) {
	manual, ok := s.clock.(*host.ManualClock)
	if !ok {
		http.Error(w, "clock is not manual", http.StatusConflict)
		return
	}
	var req advanceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	if req.To > 0 {
		manual.Set(req.To)
	} else {
		manual.Advance(req.Blocks)
	}
	height := manual.Height()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]uint64{"height": height})
}

type faucetRequest struct {
	Address crypto.Address `json:"address"`
	Amount  types.Money    `json:"amount"`
}

func (s *Server) faucet(w http.ResponseWriter, r *http.Request) {
	if !s.faucetEnabled {
		http.Error(w, "faucet disabled", http.StatusNotFound)
		return
	}
	var req faucetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Amount.IsZero() || (!s.faucetLimit.IsZero() && req.Amount.Cmp(s.faucetLimit) > 0) {
		writeError(w, fmt.Errorf("%w: faucet amount out of range", errBadRequest))
		return
	}
	balance, err := s.credit(req.Address, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: req.Address.String(), Balance: balance})
}

// requireOwner restricts daemon level toggles to the ledger owner once one is
// set. Before initialisation any admin token may act.
func (s *Server) requireOwner(r *http.Request) error {
	caller, ok := callerOf(r)
	if !ok {
		return errMissingCaller
	}
	s.mu.RLock()
	owner, err := s.engine.GetOwner()
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if !owner.IsZero() && owner != caller {
		return lending.ErrUnauthorized
	}
	return nil
}
