package rgrpc

// Well-known metadata keys of the rg_rpc wire protocol. They appear as
// custom_metadata on Arrow IPC RecordBatch messages.
const (
	MetaMethod         = "rg_rpc.method"
	MetaRequestVersion = "rg_rpc.request_version"
	MetaRequestID      = "rg_rpc.request_id"
	MetaLogLevel       = "rg_rpc.log_level"
	MetaLogMessage     = "rg_rpc.log_message"
	MetaLogExtra       = "rg_rpc.log_extra"
	MetaServerID       = "rg_rpc.server_id"

	ProtocolVersion = "1"
)
