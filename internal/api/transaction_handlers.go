package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/splitbook/splitbook/internal/ledger"
	"github.com/splitbook/splitbook/internal/models"
	"github.com/splitbook/splitbook/internal/service"
	"github.com/splitbook/splitbook/internal/storage"
)

func (s *Server) submitTransaction(c *gin.Context) {
	var draft service.TransactionDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := s.reconcile.Submit(c.Request.Context(), c.Param("groupId"), userID(c), draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func (s *Server) listTransactions(c *gin.Context) {
	includeArchived, _ := strconv.ParseBool(c.Query("includeArchived"))
	txns, err := s.reconcile.List(c.Request.Context(), c.Param("groupId"), userID(c), includeArchived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (s *Server) getTransaction(c *gin.Context) {
	txn, err := s.reconcile.Get(c.Request.Context(), c.Param("groupId"), c.Param("txnId"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (s *Server) editTransaction(c *gin.Context) {
	var edit service.TransactionEdit
	if err := c.ShouldBindJSON(&edit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := s.reconcile.Edit(c.Request.Context(), c.Param("groupId"), c.Param("txnId"), userID(c), edit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (s *Server) deleteTransaction(c *gin.Context) {
	if err := s.reconcile.Delete(c.Request.Context(), c.Param("groupId"), c.Param("txnId"), userID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// transition is the shared shape of the accept, reject, re-request,
// archive and unarchive handlers.
func (s *Server) transition(c *gin.Context, fn func(ctx *gin.Context) (*models.Transaction, error)) {
	txn, err := fn(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (s *Server) acceptTransaction(c *gin.Context) {
	s.transition(c, func(c *gin.Context) (*models.Transaction, error) {
		return s.reconcile.Accept(c.Request.Context(), c.Param("groupId"), c.Param("txnId"), userID(c))
	})
}

func (s *Server) rejectTransaction(c *gin.Context) {
	s.transition(c, func(c *gin.Context) (*models.Transaction, error) {
		return s.reconcile.Reject(c.Request.Context(), c.Param("groupId"), c.Param("txnId"), userID(c))
	})
}

func (s *Server) reRequestTransaction(c *gin.Context) {
	fresh, err := s.reconcile.ReRequest(c.Request.Context(), c.Param("groupId"), c.Param("txnId"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fresh)
}

func (s *Server) archiveTransaction(c *gin.Context) {
	s.transition(c, func(c *gin.Context) (*models.Transaction, error) {
		return s.reconcile.Archive(c.Request.Context(), c.Param("groupId"), c.Param("txnId"), userID(c))
	})
}

func (s *Server) unarchiveTransaction(c *gin.Context) {
	s.transition(c, func(c *gin.Context) (*models.Transaction, error) {
		return s.reconcile.Unarchive(c.Request.Context(), c.Param("groupId"), c.Param("txnId"), userID(c))
	})
}

func (s *Server) balances(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, err := s.groups.Get(c.Request.Context(), groupID, userID(c)); err != nil {
		writeError(c, err)
		return
	}
	sheet, err := s.reconcile.Balances(c.Request.Context(), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": sheet})
}

// watchBalances streams balance sheets as server-sent events. The first
// event is the current sheet; subsequent events follow ledger changes.
func (s *Server) watchBalances(c *gin.Context) {
	groupID := c.Param("groupId")
	if _, err := s.groups.Get(c.Request.Context(), groupID, userID(c)); err != nil {
		writeError(c, err)
		return
	}

	updates, cancel, err := s.reconcile.WatchBalances(c.Request.Context(), groupID)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		sheet, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent("balances", sheet)
		return true
	})
}

// report lists transactions matching the export filter dimensions given
// as query parameters. List-valued dimensions are comma-separated;
// from/to are RFC 3339 timestamps.
func (s *Server) report(c *gin.Context) {
	filter, err := parseReportFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}

	txns, err := s.reconcile.Report(c.Request.Context(), c.Param("groupId"), userID(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func parseReportFilter(c *gin.Context) (storage.TransactionFilter, error) {
	var filter storage.TransactionFilter

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, ledger.Validationf("invalid from timestamp %q", v)
		}
		filter.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, ledger.Validationf("invalid to timestamp %q", v)
		}
		filter.To = t
	}
	for _, kind := range splitList(c.Query("kinds")) {
		k := models.TransactionKind(kind)
		if !k.Valid() {
			return filter, ledger.Validationf("unknown transaction kind %q", kind)
		}
		filter.Kinds = append(filter.Kinds, k)
	}
	filter.Participants = splitList(c.Query("participants"))
	filter.Initiators = splitList(c.Query("initiators"))
	filter.PaymentMethods = splitList(c.Query("paymentMethods"))
	if v := c.Query("archived"); v != "" {
		archived, err := strconv.ParseBool(v)
		if err != nil {
			return filter, ledger.Validationf("invalid archived flag %q", v)
		}
		filter.Archived = &archived
	}
	return filter, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
