package log

// Attribute keys.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldDescription = "description"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldSubcategory = "subcategory"
	FieldLedgerID    = "ledger_id"
	FieldPrincipalID = "principal_id"
	FieldPosition    = "position"
	FieldStatus      = "status"
	FieldBand        = "band"
)

const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentSession   = "session"
	ComponentLocator   = "locator"
	ComponentLedger    = "ledger"
	ComponentBudget    = "budget"
	ComponentExtractor = "extractor"
	ComponentNotify    = "notify"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentBackend   = "backend"
)

const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpAppend  = "append"
	OpRefresh = "refresh"
	OpResolve = "resolve"
	OpLogin   = "login"
	OpLogout  = "logout"
	OpRestore = "restore"
	OpExtract = "extract"
	OpNotify  = "notify"
)

// Fields builds an ordered key/value list for the slog methods:
//
//	logger.InfoContext(ctx, "Entry appended", log.Fields{}.Ledger(id, p).Op(log.OpAppend)...)
type Fields []any

func (f Fields) Op(op string) Fields {
	return append(f, FieldOperation, op)
}

// Err appends err; a nil error adds nothing.
func (f Fields) Err(err error) Fields {
	if err == nil {
		return f
	}
	return append(f, FieldError, err.Error())
}

// Ledger appends the ledger and principal ids, skipping empty ones.
func (f Fields) Ledger(ledgerID, principalID string) Fields {
	if ledgerID != "" {
		f = append(f, FieldLedgerID, ledgerID)
	}
	if principalID != "" {
		f = append(f, FieldPrincipalID, principalID)
	}
	return f
}

func (f Fields) Entry(desc string, amountCents int64, category, subcategory string) Fields {
	return append(f,
		FieldDescription, desc,
		FieldAmountCents, amountCents,
		FieldCategory, category,
		FieldSubcategory, subcategory)
}
