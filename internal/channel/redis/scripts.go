package redis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// clockLua leaves the next timestamp in ts: the server's TIME in milliseconds,
// bumped past the last value handed out so timestamps never repeat or go back.
// KEYS[1] is the clock key.
const clockLua = `
if redis.replicate_commands then redis.replicate_commands() end
local t = redis.call('TIME')
local ts = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
if ts <= last then ts = last + 1 end
ts = tostring(ts)
redis.call('SET', KEYS[1], ts)
`

// commitScript writes a clinic's state, appends its call event and publishes
// the new state in one step, all stamped with the same timestamp.
//
//	KEYS: clock, state hash, calls stream
//	ARGV: hasState, hasEvent, current, status, lastCalled ("" for none), event payload, max stream length
var commitScript = redis.NewScript(clockLua + `
local id = ''
local lastCalled = ARGV[5]
if ARGV[2] == '1' then
  id = redis.call('XADD', KEYS[3], 'MAXLEN', '~', ARGV[7], ts .. '-0', 'payload', ARGV[6])
  lastCalled = ts
end
if ARGV[1] == '1' then
  redis.call('HSET', KEYS[2], 'current', ARGV[3], 'status', ARGV[4], 'lastUpdated', ts)
  local lc = 'null'
  if lastCalled ~= '' then
    redis.call('HSET', KEYS[2], 'lastCalled', lastCalled)
    lc = lastCalled
  else
    redis.call('HDEL', KEYS[2], 'lastCalled')
  end
  redis.call('PUBLISH', KEYS[2],
    '{"current":' .. ARGV[3] .. ',"status":"' .. ARGV[4] .. '","lastCalled":' .. lc .. ',"lastUpdated":' .. ts .. '}')
end
return {ts, id}
`)

// appendScript adds one entry to a stream under the shared clock.
//
//	KEYS: clock, stream
//	ARGV: payload, max stream length
var appendScript = redis.NewScript(clockLua + `
local id = redis.call('XADD', KEYS[2], 'MAXLEN', '~', ARGV[2], ts .. '-0', 'payload', ARGV[1])
return {ts, id}
`)

// resetScript zeroes every listed clinic and tells its watchers to re-read.
// The status field is only created when missing.
//
//	KEYS: clock, state hashes...
var resetScript = redis.NewScript(clockLua + `
for i = 2, #KEYS do
  redis.call('HSET', KEYS[i], 'current', 0, 'lastUpdated', ts)
  redis.call('HSETNX', KEYS[i], 'status', 'active')
  redis.call('HDEL', KEYS[i], 'lastCalled')
end
for i = 2, #KEYS do
  redis.call('PUBLISH', KEYS[i], 'reset')
end
return {ts, ''}
`)

// stamp reads the {timestamp, entry id} pair every script returns.
func stamp(res interface{}) (int64, string, error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, "", fmt.Errorf("unexpected script reply %v", res)
	}
	raw, _ := vals[0].(string)
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid script timestamp %q: %w", raw, err)
	}
	id, _ := vals[1].(string)
	return ts, id, nil
}

// entryTime is the millisecond part of a stream entry id.
func entryTime(id string) int64 {
	ms, _, _ := strings.Cut(id, "-")
	ts, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}
