package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"

	app "github.com/R3E-Network/lottery_layer/internal/app"
	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/metrics"
	lotterysvc "github.com/R3E-Network/lottery_layer/internal/app/services/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/services/vrf"
	"github.com/R3E-Network/lottery_layer/internal/middleware"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Options configures the HTTP surface.
type Options struct {
	// CallbackToken guards the fulfilment endpoint when set.
	CallbackToken string
	EntryRate     float64
	EntryBurst    int
	CORSOrigins   string
	AuditFile     string
	Log           *logger.Logger
}

// handler bundles HTTP endpoints for the lottery.
type handler struct {
	app   *app.Application
	audit *auditTrail
	log   *logger.Logger
}

// NewHandler returns the router exposing the lottery API.
func NewHandler(application *app.Application, opts Options) (http.Handler, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := openJSONLSink(opts.AuditFile)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	h := &handler{app: application, audit: newAuditTrail(500, sink), log: log}

	rate := opts.EntryRate
	if rate <= 0 {
		rate = 5
	}
	limiter := middleware.NewRateLimiter(rate, opts.EntryBurst, log)
	oracleAuth := middleware.BearerToken(opts.CallbackToken, log)

	r := mux.NewRouter()
	r.Use(h.audit.wrap)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/events", h.stream).Methods(http.MethodGet)

	r.HandleFunc("/lottery", h.status).Methods(http.MethodGet)
	r.Handle("/lottery/entries", limiter.Handler(http.HandlerFunc(h.enter))).Methods(http.MethodPost)
	r.HandleFunc("/lottery/entries/{index:[0-9]+}", h.entry).Methods(http.MethodGet)
	r.HandleFunc("/lottery/upkeep", h.checkUpkeep).Methods(http.MethodGet)
	r.HandleFunc("/lottery/upkeep", h.performUpkeep).Methods(http.MethodPost)
	r.Handle("/lottery/fulfillments", oracleAuth(http.HandlerFunc(h.fulfill))).Methods(http.MethodPost)
	r.HandleFunc("/lottery/winners", h.winners).Methods(http.MethodGet)
	r.HandleFunc("/lottery/settlements", h.settlements).Methods(http.MethodGet)
	r.HandleFunc("/lottery/withdrawals/{player}", h.pendingWithdrawal).Methods(http.MethodGet)
	r.HandleFunc("/lottery/withdrawals/{player}", h.withdraw).Methods(http.MethodPost)
	r.HandleFunc("/lottery/audit", h.auditEntries).Methods(http.MethodGet)

	if application.LocalVRF != nil {
		r.HandleFunc("/dev/vrf/requests", h.devRequests).Methods(http.MethodGet)
		r.HandleFunc("/dev/vrf/{request_id:[0-9]+}/fulfill", h.devFulfill).Methods(http.MethodPost)
	}

	// Router middleware only sees matched routes, so cross-cutting concerns
	// wrap the router itself.
	var out http.Handler = r
	out = metrics.InstrumentHandler(out)
	out = middleware.NewCORSMiddleware(opts.CORSOrigins).Handler(out)
	out = middleware.NewTracingMiddleware(log).Handler(out)
	return out, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": string(h.app.Lottery.State())})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Lottery.Snapshot())
}

func (h *handler) enter(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Player  string `json:"player"`
		Numbers []int  `json:"numbers"`
		Amount  uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	player, err := parseAddress(payload.Player)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	guess, err := domain.GuessFromSlice(payload.Numbers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := h.app.Lottery.Enter(r.Context(), player, guess, payload.Amount)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *handler) entry(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := h.app.Lottery.Entry(index)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handler) checkUpkeep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Lottery.CheckUpkeep(r.Context()))
}

func (h *handler) performUpkeep(w http.ResponseWriter, r *http.Request) {
	id, err := h.app.Lottery.PerformUpkeep(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]domain.RequestID{"request_id": id})
}

func (h *handler) fulfill(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RequestID   uint64   `json:"request_id"`
		RandomWords []string `json:"random_words"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	words, err := parseWords(payload.RandomWords)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Lottery.FulfillRandomWords(r.Context(), domain.RequestID(payload.RequestID), words); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.winners(w, r)
}

func (h *handler) winners(w http.ResponseWriter, r *http.Request) {
	numbers, ok := h.app.Lottery.LastWinningNumbers()
	resp := struct {
		Winners        []common.Address `json:"winners"`
		WinningNumbers *domain.Guess    `json:"winning_numbers,omitempty"`
	}{Winners: h.app.Lottery.RecentWinners()}
	if resp.Winners == nil {
		resp.Winners = []common.Address{}
	}
	if ok {
		resp.WinningNumbers = &numbers
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) settlements(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	list, err := h.app.Lottery.Settlements(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []domain.Settlement{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) pendingWithdrawal(w http.ResponseWriter, r *http.Request) {
	player, err := parseAddress(mux.Vars(r)["player"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"player": player,
		"amount": h.app.Lottery.PendingWithdrawal(player),
	})
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	player, err := parseAddress(mux.Vars(r)["player"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := h.app.Lottery.Withdraw(r.Context(), player)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"player": player, "amount": amount})
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.audit.recent(limit))
}

func (h *handler) devRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.LocalVRF.Pending())
}

func (h *handler) devFulfill(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["request_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.LocalVRF.Fulfill(r.Context(), domain.RequestID(id)); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	h.winners(w, r)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lotterysvc.ErrPaymentInsufficient):
		return http.StatusPaymentRequired
	case errors.Is(err, lotterysvc.ErrGuessOutOfRange),
		errors.Is(err, lotterysvc.ErrPoolOverflow),
		errors.Is(err, lotterysvc.ErrRandomnessMalformed):
		return http.StatusBadRequest
	case errors.Is(err, lotterysvc.ErrRoundNotOpen),
		errors.Is(err, lotterysvc.ErrUpkeepNotNeeded),
		errors.Is(err, lotterysvc.ErrUnknownOrStaleRequest):
		return http.StatusConflict
	case errors.Is(err, lotterysvc.ErrEntryNotFound),
		errors.Is(err, lotterysvc.ErrNothingToWithdraw),
		errors.Is(err, vrf.ErrNonexistentRequest):
		return http.StatusNotFound
	case errors.Is(err, lotterysvc.ErrDisbursementFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid player address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func parseWords(raw []string) ([]*uint256.Int, error) {
	words := make([]*uint256.Int, 0, len(raw))
	for i, s := range raw {
		word, err := uint256.FromDecimal(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("random_words[%d]: %w", i, err)
		}
		words = append(words, word)
	}
	return words, nil
}

func parseLimit(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
