package users

import (
	"encoding/json"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
)

var userKeyPrefix = []byte("meta/users/")

// EncodeUserKey generates the storage key for a user of a tenant.
func EncodeUserKey(tenantID string, identity string) []byte {
	key := make([]byte, 0, len(userKeyPrefix)+len(tenantID)+1+len(identity))
	key = append(key, userKeyPrefix...)
	key = append(key, tenantID...)
	key = append(key, '/')
	key = append(key, identity...)
	return key
}

// UserKeyRange returns the key range holding every persisted user, across all tenants.
func UserKeyRange() ([]byte, []byte) {
	return userKeyPrefix, common.IncrementBytesBigEndian(userKeyPrefix)
}

type userRecord struct {
	TenantID string    `json:"tenant_id"`
	User     *UserInfo `json:"user"`
}

func EncodeUser(tenantID string, user *UserInfo) ([]byte, error) {
	buff, err := json.Marshal(userRecord{TenantID: tenantID, User: user})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buff, nil
}

func DecodeUser(buff []byte) (string, *UserInfo, error) {
	record := userRecord{}
	if err := json.Unmarshal(buff, &record); err != nil {
		return "", nil, errors.WithStack(err)
	}
	return record.TenantID, record.User, nil
}
