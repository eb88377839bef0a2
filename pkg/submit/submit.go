// Package submit signs and broadcasts the transaction carried by a live swap
// quote. Synthetic quotes are refused unless the caller explicitly opts in.
package submit

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"enswap/pkg/tokens"
	"enswap/pkg/types"
	"enswap/pkg/units"
)

var (
	ErrSyntheticQuote      = errors.New("refusing to submit a synthetic quote")
	ErrNoTransaction       = errors.New("quote carries no transaction")
	ErrSenderMismatch      = errors.New("transaction sender does not match signing key")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

const balanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

// Backend is the subset of *ethclient.Client the submitter needs
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
}

// Options control a single Submit call
type Options struct {
	// AllowSynthetic lets a synthetic quote through the provenance guard. Such a
	// quote still has no transaction, so Submit then fails with ErrNoTransaction.
	AllowSynthetic bool
}

// Submitter signs EIP-155 legacy transactions for one chain and one key
type Submitter struct {
	backend    Backend
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	logger     logrus.FieldLogger
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithLogger installs a custom logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Submitter) {
		s.logger = l
	}
}

// New creates a new Submitter
func New(backend Backend, privateKey *ecdsa.PrivateKey, chainID int64, opts ...Option) (*Submitter, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if privateKey == nil {
		return nil, errors.New("private key is required")
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("invalid chain id %d", chainID)
	}

	s := &Submitter{
		backend:    backend,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(chainID),
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Dial connects to an RPC endpoint and builds a Submitter around it. The
// returned close func releases the connection.
func Dial(ctx context.Context, rpcURL, privateKeyHex string, chainID int64, opts ...Option) (*Submitter, func(), error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, nil, errors.New("RPC URL not configured")
	}
	if strings.TrimSpace(privateKeyHex) == "" {
		return nil, nil, errors.New("private key not configured")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	s, err := New(client, privateKey, chainID, opts...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return s, client.Close, nil
}

// Address returns the account that signs transactions
func (s *Submitter) Address() common.Address {
	return s.address
}

// Submit signs the quote's transaction and broadcasts it, returning the tx hash
func (s *Submitter) Submit(ctx context.Context, q *types.Quote, opts Options) (string, error) {
	if q == nil {
		return "", ErrNoTransaction
	}
	if q.IsSynthetic() && !opts.AllowSynthetic {
		return "", ErrSyntheticQuote
	}
	if q.Tx == nil {
		return "", ErrNoTransaction
	}

	log := s.logger.WithFields(logrus.Fields{
		"pair":       q.From.Symbol + "->" + q.To.Symbol,
		"provenance": q.Provenance,
		"chain":      s.chainID.String(),
	})

	if q.Tx.From != "" && !strings.EqualFold(common.HexToAddress(q.Tx.From).Hex(), s.address.Hex()) {
		return "", fmt.Errorf("%w: quote built for %s, key is %s", ErrSenderMismatch, q.Tx.From, s.address.Hex())
	}
	if !common.IsHexAddress(q.Tx.To) {
		return "", fmt.Errorf("invalid router address: %s", q.Tx.To)
	}
	to := common.HexToAddress(q.Tx.To)

	data, err := hexutil.Decode(q.Tx.Data)
	if err != nil {
		return "", fmt.Errorf("invalid calldata: %w", err)
	}
	value, err := optionalAmount(q.Tx.Value)
	if err != nil {
		return "", fmt.Errorf("invalid value: %w", err)
	}

	if err := s.checkBalance(ctx, q); err != nil {
		return "", err
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := optionalAmount(q.Tx.GasPrice)
	if err != nil {
		return "", fmt.Errorf("invalid gas price: %w", err)
	}
	if gasPrice.Sign() == 0 {
		if gasPrice, err = s.backend.SuggestGasPrice(ctx); err != nil {
			return "", fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	gasLimit, err := s.gasLimit(ctx, q.Tx.Gas, ethereum.CallMsg{From: s.address, To: &to, Value: value, Data: data})
	if err != nil {
		return "", err
	}

	tx := gethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := signedTx.Hash().Hex()
	log.WithFields(logrus.Fields{"tx": hash, "nonce": nonce, "gas": gasLimit}).Info("swap transaction sent")
	return hash, nil
}

// Balance returns owner's balance of token in base units
func (s *Submitter) Balance(ctx context.Context, token types.TokenDescriptor, owner common.Address) (*big.Int, error) {
	if tokens.IsNative(token) {
		balance, err := s.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	if !common.IsHexAddress(token.Address) {
		return nil, fmt.Errorf("invalid token contract address: %s", token.Address)
	}
	tokenAddress := common.HexToAddress(token.Address)

	parsedABI, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse balanceOf ABI: %w", err)
	}
	data, err := parsedABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}

	result, err := s.backend.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

func (s *Submitter) checkBalance(ctx context.Context, q *types.Quote) error {
	need, err := units.ParseBaseUnits(q.FromAmount)
	if err != nil {
		return fmt.Errorf("invalid source amount: %w", err)
	}
	have, err := s.Balance(ctx, q.From, s.address)
	if err != nil {
		return err
	}
	if have.Cmp(need) < 0 {
		return fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientBalance, have, q.From.Symbol, need)
	}
	return nil
}

// gasLimit uses the quoted gas when present, otherwise estimates with a 20% buffer
func (s *Submitter) gasLimit(ctx context.Context, quoted string, msg ethereum.CallMsg) (uint64, error) {
	gas, err := optionalAmount(quoted)
	if err != nil {
		return 0, fmt.Errorf("invalid gas: %w", err)
	}
	if gas.Sign() > 0 {
		if !gas.IsUint64() {
			return 0, fmt.Errorf("gas limit %s out of range", gas)
		}
		return gas.Uint64(), nil
	}

	estimated, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return estimated * 120 / 100, nil
}

func optionalAmount(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return new(big.Int), nil
	}
	return units.ParseBaseUnits(s)
}
