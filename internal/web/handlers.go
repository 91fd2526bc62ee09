package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nebulatrade/tradesim/internal/entity"
)

const chartDepth = 30

type createAccountRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type buyRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Quantity int64  `json:"quantity"`
}

type sellRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Quantity  int64  `json:"quantity"`
	SellPrice string `json:"sell_price" binding:"required"`
}

type watchRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (s *Server) createAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()})
		return
	}

	acct, err := s.engine.OpenAccount(c.Request.Context(), req.ID, req.Name, s.startingBalance)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (s *Server) getAccount(c *gin.Context) {
	acct, err := s.engine.Account(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) buy(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()})
		return
	}

	res, err := s.engine.Buy(c.Request.Context(), c.Param("id"), req.Symbol, req.Quantity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) sell(c *gin.Context) {
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()})
		return
	}

	// The fill price is caller-supplied, matching a manual order ticket; the
	// engine treats it as data and computes realized PnL against it.
	sellPrice, err := decimal.NewFromString(req.SellPrice)
	if err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: "sell_price must be a decimal string"})
		return
	}

	res, err := s.engine.Sell(c.Request.Context(), c.Param("id"), req.Symbol, req.Quantity, sellPrice)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getPortfolio(c *gin.Context) {
	v, err := s.engine.Valuate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) getQuotes(c *gin.Context) {
	symbols := s.feed.Symbols()
	quotes := make([]entity.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		q, err := s.feed.Quote(c.Request.Context(), symbol)
		if err != nil {
			s.writeError(c, err)
			return
		}
		quotes = append(quotes, q)
	}
	c.JSON(http.StatusOK, quotes)
}

func (s *Server) getChart(c *gin.Context) {
	symbol := c.Param("symbol")
	points, err := s.feed.History(c.Request.Context(), symbol, chartDepth)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "points": points})
}

func (s *Server) getWatchlist(c *gin.Context) {
	symbols, err := s.watchlist.ListFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	// The watchlist view joins watched symbols with their latest quotes.
	// A symbol whose data source disappeared is skipped, not fatal.
	quotes := make([]entity.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		q, err := s.feed.Quote(c.Request.Context(), symbol)
		if err != nil {
			if errors.Is(err, entity.ErrUnknownSymbol) {
				continue
			}
			s.writeError(c, err)
			return
		}
		quotes = append(quotes, q)
	}
	c.JSON(http.StatusOK, quotes)
}

func (s *Server) addToWatchlist(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()})
		return
	}

	// Reject symbols the feed cannot price; watching them would be noise.
	if _, err := s.feed.Quote(c.Request.Context(), req.Symbol); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.watchlist.Add(c.Request.Context(), c.Param("id"), req.Symbol); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"watched": req.Symbol})
}
