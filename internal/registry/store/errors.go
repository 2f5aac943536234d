package store

import "errors"

var errRecordRequired = errors.New("cnpj record is required")
