package bank

import (
	"fmt"

	"github.com/DanielPopoola/wallet-ledger/internal/application"
)

// classifyResponse is the outcome classifier, a direct port (in meaning, not
// in code shape) of original_source's wallets/integrations/bank_client.py
// _normalize_response and spec.md §4.2's classification rules.
func classifyResponse(httpStatus int, body *transferResponseBody, fallbackReference string) *application.TransferResult {
	normalizedStatus := httpStatus
	if body.Status != nil {
		normalizedStatus = *body.Status
	}

	var bodyState string
	if body.Data != nil {
		bodyState = *body.Data
	}

	httpSuccess := httpStatus >= 200 && httpStatus < 300

	if httpSuccess && normalizedStatus == 200 && bodyState == "success" {
		reference := firstNonEmpty(body.Reference, body.BankReference, body.TransferID)
		if reference == "" {
			reference = fallbackReference
		}
		return &application.TransferResult{Outcome: application.OutcomeSuccess, BankReference: reference}
	}

	failureReason := ""
	if body.ErrorReason != nil && *body.ErrorReason != "" {
		failureReason = *body.ErrorReason
	} else if bodyState != "" {
		failureReason = bodyState
	} else {
		failureReason = fmt.Sprintf("upstream_status_%d", normalizedStatus)
	}

	if httpStatus >= 500 {
		return &application.TransferResult{Outcome: application.OutcomeUnknown, FailureReason: failureReason}
	}
	return &application.TransferResult{Outcome: application.OutcomeFinalFailure, FailureReason: failureReason}
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

// classifyInvalidJSON handles the case where the response body could not be
// parsed at all, grounded on _normalize_response's ValueError branch
// (UNKNOWN, reason invalid_json_response_http_<code>).
func classifyInvalidJSON(httpStatus int) *application.TransferResult {
	return &application.TransferResult{
		Outcome:       application.OutcomeUnknown,
		FailureReason: fmt.Sprintf("invalid_json_response_http_%d", httpStatus),
	}
}
