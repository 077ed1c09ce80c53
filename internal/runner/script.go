package runner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"restakeLedger/internal/model"
)

// Op kinds accepted in a script.
const (
	OpCreatePool         = "create_pool"
	OpSetWeight          = "set_weight"
	OpTransferOwnership  = "transfer_ownership"
	OpMint               = "mint"
	OpApprove            = "approve"
	OpRegisterOperator   = "register_operator"
	OpDelegate           = "delegate"
	OpStake              = "stake"
	OpWithdraw           = "withdraw"
	OpQueueWithdrawal    = "queue_withdrawal"
	OpCompleteWithdrawal = "complete_withdrawal"
	OpEnroll             = "enroll"
	OpExit               = "exit"
	OpSlash              = "slash"
	OpAdvance            = "advance"
)

// Op is one line of an operation script. Fields not used by Op are ignored.
type Op struct {
	Op        string            `json:"op"`
	Caller    string            `json:"caller,omitempty"`
	Staker    string            `json:"staker,omitempty"`
	Operator  string            `json:"operator,omitempty"`
	Authority string            `json:"authority,omitempty"`
	Pool      string            `json:"pool,omitempty"`
	Account   string            `json:"account,omitempty"`
	Amount    string            `json:"amount,omitempty"`
	Weight    uint64            `json:"weight,omitempty"`
	Unbonding string            `json:"unbonding,omitempty"`
	Seconds   int64             `json:"seconds,omitempty"`
	Proof     *model.SlashProof `json:"proof,omitempty"`
	// Expect is the outcome code the op must produce: "ok" or an error code
	// such as "not_ready". Empty accepts any outcome.
	Expect string `json:"expect,omitempty"`
}

// ReadScript parses a JSONL script. Blank lines and lines starting with '#' are skipped.
func ReadScript(path string) ([]Op, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer file.Close()

	var (
		ops    []Op
		lineNo int
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var op Op
		decoder := json.NewDecoder(bytes.NewReader(line))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&op); err != nil {
			return nil, fmt.Errorf("parse script line %d: %w", lineNo, err)
		}
		if op.Op == "" {
			return nil, fmt.Errorf("script line %d: missing op", lineNo)
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ops, nil
}
