package errors

import (
	"fmt"
)

type ErrorCode int

const (
	InternalError = iota
	InvalidConfiguration

	UnknownSession
	SessionClosed
	InvalidSessionType

	UnknownNode
	UnknownSchema
	UnknownTable
	UnknownUser
	UnknownField

	InvalidSetting
	MissingPrivilege

	CatalogUnavailable
	StorageUnavailable
	AuthBackendUnavailable

	TableAlreadyExists
	UserAlreadyExists

	AuthenticationFailed
	InvalidStatement
)

func NewInternalError(errRef string) DatabendError {
	return NewDatabendErrorf(InternalError, "Internal error - reference: %s please consult server logs for details", errRef)
}

func NewInvalidConfigurationError(msg string) DatabendError {
	return NewDatabendErrorf(InvalidConfiguration, "Invalid configuration: %s", msg)
}

func NewUnknownSessionError(sessionID string) DatabendError {
	return NewDatabendErrorf(UnknownSession, "Unknown session ID %s", sessionID)
}

func NewSessionClosedError(sessionID string) DatabendError {
	return NewDatabendErrorf(SessionClosed, "Session %s is closed", sessionID)
}

func NewInvalidSessionTypeError(sessionType string) DatabendError {
	return NewDatabendErrorf(InvalidSessionType, "Invalid session type: %s", sessionType)
}

func NewUnknownNodeError(nodeID string) DatabendError {
	return NewDatabendErrorf(UnknownNode, "Unknown cluster node %s", nodeID)
}

func NewUnknownSchemaError(schemaName string) DatabendError {
	return NewDatabendErrorf(UnknownSchema, "Unknown schema: %s", schemaName)
}

func NewUnknownTableError(schemaName string, tableName string) DatabendError {
	return NewDatabendErrorf(UnknownTable, "Unknown table: %s.%s", schemaName, tableName)
}

func NewUnknownUserError(tenantID string, identity string) DatabendError {
	return NewDatabendErrorf(UnknownUser, "Unknown user %s for tenant %s", identity, tenantID)
}

func NewUnknownFieldError(fieldName string, schema string) DatabendError {
	return NewDatabendErrorf(UnknownField, "Unknown field %s in schema (%s)", fieldName, schema)
}

func NewInvalidSettingError(settingName string, msg string) DatabendError {
	return NewDatabendErrorf(InvalidSetting, "Invalid value for setting %s: %s", settingName, msg)
}

func NewMissingPrivilegeError(privilege string, object string, identity string) DatabendError {
	return NewDatabendErrorf(MissingPrivilege, "User %s is missing privilege %s on %s", identity, privilege, object)
}

func NewCatalogUnavailableError(msg string) DatabendError {
	return NewDatabendErrorf(CatalogUnavailable, "Catalog backend unavailable: %s", msg)
}

func NewStorageUnavailableError(msg string) DatabendError {
	return NewDatabendErrorf(StorageUnavailable, "Storage backend unavailable: %s", msg)
}

func NewAuthBackendUnavailableError(msg string) DatabendError {
	return NewDatabendErrorf(AuthBackendUnavailable, "Auth backend unavailable: %s", msg)
}

func NewTableAlreadyExistsError(schemaName string, tableName string) DatabendError {
	return NewDatabendErrorf(TableAlreadyExists, "Table already exists: %s.%s", schemaName, tableName)
}

func NewUserAlreadyExistsError(tenantID string, identity string) DatabendError {
	return NewDatabendErrorf(UserAlreadyExists, "User already exists: %s for tenant %s", identity, tenantID)
}

func NewAuthenticationFailedError(identity string) DatabendError {
	return NewDatabendErrorf(AuthenticationFailed, "Authentication failed for user %s", identity)
}

func NewDatabendErrorf(errorCode ErrorCode, msgFormat string, args ...interface{}) DatabendError {
	msg := fmt.Sprintf(fmt.Sprintf("DBE%04d - %s", errorCode, msgFormat), args...)
	return DatabendError{Code: errorCode, Msg: msg}
}

func NewDatabendError(errorCode ErrorCode, msg string) DatabendError {
	return DatabendError{Code: errorCode, Msg: msg}
}

func Error(msg string) error {
	return New(msg)
}

// DatabendError is any kind of error that is exposed to the user via external interfaces like the CLI
type DatabendError struct {
	Code ErrorCode
	Msg  string
}

func (u DatabendError) Error() string {
	return u.Msg
}
