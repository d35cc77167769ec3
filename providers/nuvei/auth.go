package nuvei

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"
)

// AuthToken builds the Auth-Token header:
// base64("{app_code};{unix_ts};sha256hex(app_key + unix_ts)").
func AuthToken(appCode string, appKey string, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	uniq := sha256.Sum256([]byte(appKey + timestamp))
	raw := appCode + ";" + timestamp + ";" + hex.EncodeToString(uniq[:])
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// CallbackToken is the stoken Nuvei attaches to every callback:
// md5hex("{transaction_id}_{app_code}_{user_id}_{app_key}").
func CallbackToken(transactionID string, appCode string, userID string, appKey string) string {
	sum := md5.Sum([]byte(transactionID + "_" + appCode + "_" + userID + "_" + appKey))
	return hex.EncodeToString(sum[:])
}
