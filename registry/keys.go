package registry

import "fmt"

// Directory key layout. Bit-exact: other language implementations of
// this framework interoperate with the same Redis instance, so the
// prefixes and shapes below are part of the wire contract, not an
// implementation detail.
//
//	se:s                      -- SET of known service names
//	se:s:<name>:g              -- SET of instance guids for <name>
//	hm:s:<name>:g:<guid>       -- HASH: the ServiceConfig for that instance
//	zs:h:<host>:p              -- ZSET of free ports on <host> (member == score)
const (
	setKeyPrefix  = "se"
	hashKeyPrefix = "hm"
	zsetKeyPrefix = "zs"
)

func servicesKey() string {
	return fmt.Sprintf("%s:s", setKeyPrefix)
}

func serviceGUIDsKey(name string) string {
	return fmt.Sprintf("%s:s:%s:g", setKeyPrefix, name)
}

func serviceInstanceKey(name, guid string) string {
	return fmt.Sprintf("%s:s:%s:g:%s", hashKeyPrefix, name, guid)
}

func hostPortsKey(host string) string {
	return fmt.Sprintf("%s:h:%s:p", zsetKeyPrefix, host)
}
