package bridge

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// bridgeABI is the subset of the L1/L2 bridge contract interface the
// watchers depend on: the transfer lifecycle events, the accounting view
// calls and the remediation methods.
const bridgeABI = `[
	{"type":"event","name":"TransferSent","inputs":[
		{"name":"transferId","type":"bytes32","indexed":true},
		{"name":"chainId","type":"uint256","indexed":true},
		{"name":"recipient","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"transferNonce","type":"bytes32","indexed":false},
		{"name":"bonderFee","type":"uint256","indexed":false},
		{"name":"index","type":"uint256","indexed":false},
		{"name":"amountOutMin","type":"uint256","indexed":false},
		{"name":"deadline","type":"uint256","indexed":false}]},
	{"type":"event","name":"TransfersCommitted","inputs":[
		{"name":"destinationChainId","type":"uint256","indexed":true},
		{"name":"rootHash","type":"bytes32","indexed":true},
		{"name":"totalAmount","type":"uint256","indexed":false},
		{"name":"rootCommittedAt","type":"uint256","indexed":false}]},
	{"type":"event","name":"WithdrawalBonded","inputs":[
		{"name":"transferId","type":"bytes32","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WithdrawalBondSettled","inputs":[
		{"name":"bonder","type":"address","indexed":true},
		{"name":"transferId","type":"bytes32","indexed":true},
		{"name":"rootHash","type":"bytes32","indexed":true}]},
	{"type":"event","name":"MultipleWithdrawalsSettled","inputs":[
		{"name":"bonder","type":"address","indexed":true},
		{"name":"rootHash","type":"bytes32","indexed":true},
		{"name":"totalBondsSettled","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdrew","inputs":[
		{"name":"transferId","type":"bytes32","indexed":true},
		{"name":"recipient","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"transferNonce","type":"bytes32","indexed":false}]},
	{"type":"event","name":"TransferRootSet","inputs":[
		{"name":"rootHash","type":"bytes32","indexed":true},
		{"name":"totalAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"TransferRootConfirmed","inputs":[
		{"name":"originChainId","type":"uint256","indexed":true},
		{"name":"destinationChainId","type":"uint256","indexed":true},
		{"name":"rootHash","type":"bytes32","indexed":true},
		{"name":"totalAmount","type":"uint256","indexed":false}]},
	{"type":"event","name":"TransferRootBonded","inputs":[
		{"name":"root","type":"bytes32","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"TransferBondChallenged","inputs":[
		{"name":"transferRootId","type":"bytes32","indexed":true},
		{"name":"rootHash","type":"bytes32","indexed":true},
		{"name":"originalAmount","type":"uint256","indexed":false}]},
	{"type":"function","name":"getTransferRoot","stateMutability":"view","inputs":[
		{"name":"rootHash","type":"bytes32"},
		{"name":"totalAmount","type":"uint256"}],
		"outputs":[{"name":"","type":"tuple","components":[
			{"name":"total","type":"uint256"},
			{"name":"amountWithdrawn","type":"uint256"},
			{"name":"createdAt","type":"uint256"}]}]},
	{"type":"function","name":"getBondedWithdrawalAmount","stateMutability":"view","inputs":[
		{"name":"bonder","type":"address"},
		{"name":"transferId","type":"bytes32"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"isTransferIdSpent","stateMutability":"view","inputs":[
		{"name":"transferId","type":"bytes32"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferBonds","stateMutability":"view","inputs":[
		{"name":"transferRootId","type":"bytes32"}],
		"outputs":[
			{"name":"bonder","type":"address"},
			{"name":"createdAt","type":"uint256"},
			{"name":"totalAmount","type":"uint256"},
			{"name":"challengeStartTime","type":"uint256"},
			{"name":"challenger","type":"address"},
			{"name":"challengeResolved","type":"bool"}]},
	{"type":"function","name":"transferRootCommittedAt","stateMutability":"view","inputs":[
		{"name":"destChainId","type":"uint256"},
		{"name":"transferRootId","type":"bytes32"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"challengeTransferRootBond","stateMutability":"nonpayable","inputs":[
		{"name":"rootHash","type":"bytes32"},
		{"name":"originalAmount","type":"uint256"},
		{"name":"destinationChainId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"resolveChallenge","stateMutability":"nonpayable","inputs":[
		{"name":"rootHash","type":"bytes32"},
		{"name":"originalAmount","type":"uint256"},
		{"name":"destinationChainId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"settleBondedWithdrawals","stateMutability":"nonpayable","inputs":[
		{"name":"bonder","type":"address"},
		{"name":"transferIds","type":"bytes32[]"},
		{"name":"totalAmount","type":"uint256"}],"outputs":[]}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	a, err := abi.JSON(strings.NewReader(bridgeABI))
	if err != nil {
		panic(err)
	}
	return a
}

// ABI returns the parsed bridge contract ABI.
func ABI() abi.ABI {
	return parsedABI
}
