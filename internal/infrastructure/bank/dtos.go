// Package bank implements the outbound bank gateway: HTTP transport, the
// outcome classifier, and retry/backoff, grounded on the teacher's
// internal/infrastructure/bank package (client.go, retry.go, errors.go,
// dtos.go) and original_source's wallets/integrations/bank_client.py for
// exact classifier and retry math.
package bank

// transferRequestBody is the outbound wire shape for a transfer call,
// grounded on spec.md §6's bank API contract
// (`{idempotency_key, wallet_owner_ref, amount}`).
type transferRequestBody struct {
	IdempotencyKey string `json:"idempotency_key"`
	WalletOwnerRef string `json:"wallet_owner_ref"`
	Amount         int64  `json:"amount"`
}

// transferResponseBody is the inbound wire shape. Fields are pointers so
// the classifier in outcome.go can distinguish "absent" from "zero value".
type transferResponseBody struct {
	Status        *int    `json:"status"`
	Data          *string `json:"data"`
	Reference     *string `json:"reference"`
	BankReference *string `json:"bank_reference"`
	TransferID    *string `json:"transfer_id"`
	ErrorReason   *string `json:"error_reason"`
}
