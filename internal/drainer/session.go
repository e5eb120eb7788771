package drainer

import (
	"strings"
	"sync"
	"time"
)

// callClass buckets RPC methods by their role in a drainer sequence.
type callClass int

const (
	classOther callClass = iota
	classEnumeration
	classTxPrep
	classTxExec
)

// Method classification sets. Matching is by substring/prefix so that
// variants like getTokenAccountsByDelegate and signAllTransactions fall
// into the right bucket without enumerating every suffix.
var (
	enumerationMethods = []string{
		"getBalance",
		"getTokenAccountsBy",
		"getAccountInfo",
		"getMultipleAccounts",
		"getProgramAccounts",
	}
	txPrepMethods = []string{
		"getLatestBlockhash",
		"getRecentBlockhash",
		"getFeeForMessage",
	}
	txExecMethods = []string{
		"sendTransaction",
		"simulateTransaction",
		"signTransaction",
		"signAllTransactions",
	}
)

// classify maps a method name to its call class.
func classify(method string) callClass {
	for _, m := range enumerationMethods {
		if strings.HasPrefix(method, m) {
			return classEnumeration
		}
	}
	for _, m := range txPrepMethods {
		if strings.HasPrefix(method, m) {
			return classTxPrep
		}
	}
	for _, m := range txExecMethods {
		if strings.HasPrefix(method, m) {
			return classTxExec
		}
	}
	return classOther
}

// call is one observed RPC invocation.
type call struct {
	method string
	at     time.Time
}

// session holds the per-key observation state. Each session has its own
// mutex so concurrent observations on different keys never contend.
type session struct {
	mu sync.Mutex

	firstCallTime time.Time
	enumeration   []call
	txPrep        []call
	txExec        []call

	// otherCalls counts unclassified methods; bookkeeping only, never
	// evaluated by the rules.
	otherCalls int

	// emitted records warning names already raised for this session, so
	// reporting layers can list unique findings. It does not suppress
	// re-emission.
	emitted map[string]int
}

func newSession(first time.Time) *session {
	return &session{
		firstCallTime: first,
		emitted:       make(map[string]int),
	}
}

// countSince returns how many calls in list happened strictly after cutoff.
func countSince(list []call, cutoff time.Time) int {
	n := 0
	for _, c := range list {
		if c.at.After(cutoff) {
			n++
		}
	}
	return n
}

// countMethod returns how many calls in list carry the given method name.
func countMethod(list []call, method string) int {
	n := 0
	for _, c := range list {
		if strings.HasPrefix(c.method, method) {
			n++
		}
	}
	return n
}
