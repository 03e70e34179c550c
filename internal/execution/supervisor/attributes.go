package supervisor

import "go.opentelemetry.io/otel/attribute"

const (
	attrCommandID = attribute.Key("command.id")
	attrCommandOp = attribute.Key("command.op")
	attrPid       = attribute.Key("process.pid")
	attrExitCode  = attribute.Key("process.exit_code")
	attrSignal    = attribute.Key("process.signal")
)
