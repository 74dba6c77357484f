package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/slhventures/investorledger/pkg/ledger"
)

func (server *Server) handleGetAccount(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	accountID, err := ledger.NewAccountID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !canActFor(authorization, accountID) {
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "cannot read another account"))
		return
	}
	account, err := server.service.Account(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": toAccountPayload(account)})
}

func (server *Server) handleSetAccountStatus(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	accountID, err := ledger.NewAccountID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	var request accountStatusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	status, err := ledger.ParseAccountStatus(request.Status)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if err := server.service.SetAccountStatus(ctx.Request.Context(), authorization, accountID, status); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account_id": accountID.String(), "status": status.String()})
}

func (server *Server) handleBalance(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	accountID, err := ledger.NewAccountID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !canActFor(authorization, accountID) {
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "cannot read another account"))
		return
	}
	bucket, err := ledger.ParseBucket(ctx.DefaultQuery("bucket", ledger.BucketInvestor.String()))
	if err != nil {
		respondError(ctx, err)
		return
	}
	currency, err := ledger.NewCurrency(ctx.DefaultQuery("currency", defaultPointsCurrency))
	if err != nil {
		respondError(ctx, err)
		return
	}
	balance, err := server.service.Balance(ctx.Request.Context(), accountID, bucket, currency)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id": accountID.String(),
		"bucket":     bucket.String(),
		"currency":   currency.String(),
		"balance":    balance.String(),
	})
}

func (server *Server) handleStatement(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	accountID, err := ledger.NewAccountID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !canActFor(authorization, accountID) {
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "cannot read another account"))
		return
	}
	bucket, err := ledger.ParseBucket(ctx.DefaultQuery("bucket", ledger.BucketInvestor.String()))
	if err != nil {
		respondError(ctx, err)
		return
	}
	query := ledger.EntryQuery{AccountID: accountID, Bucket: bucket}
	if raw := ctx.Query("currency"); raw != "" {
		currency, err := ledger.NewCurrency(raw)
		if err != nil {
			respondError(ctx, err)
			return
		}
		query.Currency = currency
	}
	if raw := ctx.Query("direction"); raw != "" {
		direction, err := ledger.ParseDirection(raw)
		if err != nil {
			respondError(ctx, err)
			return
		}
		query.Direction = direction
	}
	if raw := ctx.Query("reason"); raw != "" {
		reason, err := ledger.ParseReason(raw)
		if err != nil {
			respondError(ctx, err)
			return
		}
		query.Reason = reason
	}
	if raw := ctx.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "limit must be an integer"))
			return
		}
		query.Limit = limit
	}
	entries, err := server.service.Statement(ctx.Request.Context(), query)
	if err != nil {
		respondError(ctx, err)
		return
	}
	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, toEntryPayload(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": payload})
}

func (server *Server) handleAppend(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request appendRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	input, err := appendInputFromRequest(request)
	if err != nil {
		respondError(ctx, err)
		return
	}
	entryID, err := server.service.Append(ctx.Request.Context(), authorization, input)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"entry_id": entryID})
}

func appendInputFromRequest(request appendRequest) (ledger.AppendInput, error) {
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return ledger.AppendInput{}, err
	}
	bucket, err := ledger.ParseBucket(request.Bucket)
	if err != nil {
		return ledger.AppendInput{}, err
	}
	currency, err := ledger.NewCurrency(request.Currency)
	if err != nil {
		return ledger.AppendInput{}, err
	}
	direction, err := ledger.ParseDirection(request.Direction)
	if err != nil {
		return ledger.AppendInput{}, err
	}
	amount, err := ledger.NewAmountFromString(request.Amount)
	if err != nil {
		return ledger.AppendInput{}, err
	}
	reason, err := ledger.ParseReason(request.Reason)
	if err != nil {
		return ledger.AppendInput{}, err
	}
	return ledger.AppendInput{
		AccountID: accountID,
		Bucket:    bucket,
		Currency:  currency,
		Direction: direction,
		Amount:    amount,
		Reason:    reason,
		Metadata:  ledger.NewMetadataFromMap(request.Metadata),
	}, nil
}

func (server *Server) handleTransfer(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request transferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if request.From == "" {
		request.From = authorization.Subject
	}
	from, err := ledger.NewAccountID(request.From)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !canActFor(authorization, from) {
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "cannot move another account's funds"))
		return
	}
	to, err := ledger.NewAccountID(request.To)
	if err != nil {
		respondError(ctx, err)
		return
	}
	amount, err := ledger.NewAmountFromString(request.Amount)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if request.Currency == "" {
		request.Currency = defaultPointsCurrency
	}
	currency, err := ledger.NewCurrency(request.Currency)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if request.Bucket == "" {
		request.Bucket = ledger.BucketInvestor.String()
	}
	bucket, err := ledger.ParseBucket(request.Bucket)
	if err != nil {
		respondError(ctx, err)
		return
	}
	transfer, err := server.service.TransferPoints(ctx.Request.Context(), from, to, amount, currency, bucket)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transfer": toTransferPayload(transfer)})
}

func (server *Server) handleCreateRedemption(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request redemptionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if request.AccountID == "" {
		request.AccountID = authorization.Subject
	}
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if !canActFor(authorization, accountID) {
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "cannot redeem another account's funds"))
		return
	}
	amount, err := ledger.NewAmountFromString(request.Amount)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if request.Currency == "" {
		request.Currency = defaultPointsCurrency
	}
	currency, err := ledger.NewCurrency(request.Currency)
	if err != nil {
		respondError(ctx, err)
		return
	}
	policy, err := ledger.ParsePolicy(request.Policy)
	if err != nil {
		respondError(ctx, err)
		return
	}
	redemption, err := server.service.CreateRedemption(ctx.Request.Context(), ledger.RedemptionInput{
		AccountID:     accountID,
		Amount:        amount,
		Currency:      currency,
		Cohort:        request.Cohort,
		Policy:        policy,
		PayoutAddress: request.PayoutAddress,
		Note:          request.Note,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"redemption": toRedemptionPayload(redemption)})
}

func (server *Server) handleListRedemptions(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	if authorization.Role != ledger.RoleAdmin {
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "admin role required"))
		return
	}
	var status ledger.RedemptionStatus
	if raw := ctx.Query("status"); raw != "" {
		parsed, err := ledger.ParseRedemptionStatus(raw)
		if err != nil {
			respondError(ctx, err)
			return
		}
		status = parsed
	}
	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "limit must be an integer"))
			return
		}
		limit = parsed
	}
	redemptions, err := server.service.ListRedemptions(ctx.Request.Context(), status, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	payload := make([]redemptionPayload, 0, len(redemptions))
	for _, redemption := range redemptions {
		payload = append(payload, toRedemptionPayload(redemption))
	}
	ctx.JSON(http.StatusOK, gin.H{"redemptions": payload})
}

func (server *Server) handleApproveRedemption(ctx *gin.Context) {
	server.handleRedemptionAction(ctx, func(authorization ledger.Authorization, redemptionID int64, note string) (ledger.Redemption, error) {
		return server.service.ApproveRedemption(ctx.Request.Context(), authorization, redemptionID, note)
	})
}

func (server *Server) handleRejectRedemption(ctx *gin.Context) {
	server.handleRedemptionAction(ctx, func(authorization ledger.Authorization, redemptionID int64, note string) (ledger.Redemption, error) {
		return server.service.RejectRedemption(ctx.Request.Context(), authorization, redemptionID, note)
	})
}

func (server *Server) handleRedemptionAction(ctx *gin.Context, action func(ledger.Authorization, int64, string) (ledger.Redemption, error)) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	redemptionID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "redemption id must be an integer"))
		return
	}
	var request redemptionActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && ctx.Request.ContentLength > 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	redemption, err := action(authorization, redemptionID, request.Note)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"redemption": toRedemptionPayload(redemption)})
}

func (server *Server) handlePayoutRedemption(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	redemptionID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "redemption id must be an integer"))
		return
	}
	if err := server.service.PayoutRedemption(ctx.Request.Context(), authorization, redemptionID); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleAccrue(ctx *gin.Context) {
	authorization, ok := getAuthorization(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request accrualRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	apr, err := decimal.NewFromString(request.APR)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", "apr must be a decimal"))
		return
	}
	currency, err := ledger.NewCurrency(request.Currency)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if request.Bucket == "" {
		request.Bucket = ledger.BucketInvestor.String()
	}
	bucket, err := ledger.ParseBucket(request.Bucket)
	if err != nil {
		respondError(ctx, err)
		return
	}
	input := ledger.AccrualInput{APR: apr, Currency: currency, Bucket: bucket}
	if request.Day != "" {
		day, err := ledger.ParseDay(request.Day)
		if err != nil {
			respondError(ctx, err)
			return
		}
		input.Day = day
	}
	result, err := server.service.AccrueDaily(ctx.Request.Context(), authorization, input)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"result": accrualPayload{
		Processed:     result.Processed,
		Credited:      result.Credited,
		Skipped:       result.Skipped,
		TotalInterest: result.TotalInterest.String(),
		Day:           result.Day.String(),
	}})
}
