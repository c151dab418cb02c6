package api

import (
	"github.com/alecthomas/participle/v2"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
)

func MaybeConvertError(err error) errors.DatabendError {
	var derr errors.DatabendError
	if errors.As(err, &derr) {
		return derr
	}
	var participleErr participle.Error
	if errors.As(err, &participleErr) {
		return errors.NewDatabendErrorf(errors.InvalidStatement, participleErr.Error())
	}
	return common.LogInternalError(err)
}
