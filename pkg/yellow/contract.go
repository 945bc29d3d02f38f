package yellow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/erc7824/yellow-provider/internal/logger"
	"github.com/erc7824/yellow-provider/internal/metrics"
)

// ChainReceipt is the normalized result of waiting for a submitted transaction to mine.
type ChainReceipt struct {
	TxHash  string
	Success bool
}

// CreateChannelTx is the on-chain leg of createChannel (§4.5). ChallengeDuration carries
// the configured dispute window into the call as an arbitrary-precision integer.
type CreateChannelTx struct {
	ChannelId         [32]byte
	Token             common.Address
	Counterparty      common.Address
	Amount            *big.Int
	ChallengeDuration *big.Int
}

// ResizeChannelTx is the on-chain leg of resizeChannel (§4.5).
type ResizeChannelTx struct {
	ChannelId [32]byte
	Delta     *big.Int
}

// CloseChannelTx is the on-chain leg of closeChannel (§4.5), with an optional withdrawal.
type CloseChannelTx struct {
	ChannelId [32]byte
	Withdraw  bool
}

// ContractClient is the typed RPC client for the custody/adjudicator contract pair
// consumed as an external collaborator (§1, §6): four capabilities — submit creation,
// resize, close (with optional withdrawal leg), and read balances for a channel id — plus
// WaitForReceipt and a Healthy connectivity check.
type ContractClient interface {
	CreateChannel(ctx context.Context, tx CreateChannelTx) (txHash string, err error)
	ResizeChannel(ctx context.Context, tx ResizeChannelTx) (txHash string, err error)
	CloseChannel(ctx context.Context, tx CloseChannelTx) (txHash string, err error)
	ReadBalances(ctx context.Context, channelId string) ([]Allocation, string, error)
	WaitForReceipt(ctx context.Context, txHash string) (*ChainReceipt, error)
	Healthy(ctx context.Context) error
}

// manualABI packs function calls the way clientv4.go's ListAgentsByOwner does: no
// generated binding exists for an ERC-7824 custody/adjudicator pair, so arguments are
// packed by hand from the Solidity selector and abi.Arguments.
type manualABI struct {
	createChannelArgs abi.Arguments
	resizeChannelArgs abi.Arguments
	closeChannelArgs  abi.Arguments
	balancesArgs      abi.Arguments
}

func newManualABI() (*manualABI, error) {
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	addressType, _ := abi.NewType("address", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	int256Type, _ := abi.NewType("int256", "", nil)
	boolType, _ := abi.NewType("bool", "", nil)

	return &manualABI{
		createChannelArgs: abi.Arguments{
			{Type: bytes32Type}, {Type: addressType}, {Type: addressType}, {Type: uint256Type}, {Type: uint256Type},
		},
		resizeChannelArgs: abi.Arguments{
			{Type: bytes32Type}, {Type: int256Type},
		},
		closeChannelArgs: abi.Arguments{
			{Type: bytes32Type}, {Type: boolType},
		},
		balancesArgs: abi.Arguments{
			{Type: bytes32Type},
		},
	}, nil
}

func methodID(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// EthereumContractClient is the go-ethereum-backed ContractClient, grounded on
// clientv4.go's EthereumClientV4: ethclient.Dial, bind.NewKeyedTransactorWithChainID, and
// a waitForTransaction polling loop.
type EthereumContractClient struct {
	client             *ethclient.Client
	custodyAddress     common.Address
	adjudicatorAddress common.Address
	chainID            *big.Int
	privateKey         *ecdsa.PrivateKey
	abi                *manualABI
	log                logger.Logger
}

// NewEthereumContractClient dials rpcURL and prepares a client bound to the given
// custody/adjudicator addresses and signing key.
func NewEthereumContractClient(ctx context.Context, rpcURL, custodyAddress, adjudicatorAddress string, chainID int64, privateKey *ecdsa.PrivateKey, log logger.Logger) (*EthereumContractClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial node rpc: %w", err)
	}

	manual, err := newManualABI()
	if err != nil {
		return nil, err
	}

	return &EthereumContractClient{
		client:             client,
		custodyAddress:     common.HexToAddress(custodyAddress),
		adjudicatorAddress: common.HexToAddress(adjudicatorAddress),
		chainID:            big.NewInt(chainID),
		privateKey:         privateKey,
		abi:                manual,
		log:                log,
	}, nil
}

func (c *EthereumContractClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.privateKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

func (c *EthereumContractClient) send(ctx context.Context, to common.Address, data []byte, operation string) (string, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		metrics.ChannelTxSubmissions.WithLabelValues(operation, "error").Inc()
		return "", newFallback(ReasonTxFailed, "failed to prepare transaction", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, opts.From)
	if err != nil {
		metrics.ChannelTxSubmissions.WithLabelValues(operation, "error").Inc()
		return "", newFallback(ReasonTxFailed, "failed to fetch nonce", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		metrics.ChannelTxSubmissions.WithLabelValues(operation, "error").Inc()
		return "", newFallback(ReasonTxFailed, "failed to suggest gas price", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      3_000_000,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		metrics.ChannelTxSubmissions.WithLabelValues(operation, "error").Inc()
		return "", newFallback(ReasonTxFailed, "failed to sign transaction", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		metrics.ChannelTxSubmissions.WithLabelValues(operation, "error").Inc()
		return "", newFallback(ReasonTxFailed, "failed to submit transaction", err)
	}

	metrics.ChannelTxSubmissions.WithLabelValues(operation, "ok").Inc()
	return signedTx.Hash().Hex(), nil
}

// CreateChannel submits the on-chain channel-creation transaction.
func (c *EthereumContractClient) CreateChannel(ctx context.Context, tx CreateChannelTx) (string, error) {
	challengeDuration := tx.ChallengeDuration
	if challengeDuration == nil {
		challengeDuration = big.NewInt(0)
	}
	packed, err := c.abi.createChannelArgs.Pack(tx.ChannelId, tx.Token, tx.Counterparty, tx.Amount, challengeDuration)
	if err != nil {
		return "", fmt.Errorf("pack createChannel args: %w", err)
	}
	data := append(methodID("createChannel(bytes32,address,address,uint256,uint256)"), packed...)
	return c.send(ctx, c.custodyAddress, data, "create")
}

// ResizeChannel submits the on-chain resize transaction.
func (c *EthereumContractClient) ResizeChannel(ctx context.Context, tx ResizeChannelTx) (string, error) {
	packed, err := c.abi.resizeChannelArgs.Pack(tx.ChannelId, tx.Delta)
	if err != nil {
		return "", fmt.Errorf("pack resizeChannel args: %w", err)
	}
	data := append(methodID("resizeChannel(bytes32,int256)"), packed...)
	return c.send(ctx, c.custodyAddress, data, "resize")
}

// CloseChannel submits the on-chain close transaction, optionally with a withdrawal leg.
func (c *EthereumContractClient) CloseChannel(ctx context.Context, tx CloseChannelTx) (string, error) {
	packed, err := c.abi.closeChannelArgs.Pack(tx.ChannelId, tx.Withdraw)
	if err != nil {
		return "", fmt.Errorf("pack closeChannel args: %w", err)
	}
	data := append(methodID("closeChannel(bytes32,bool)"), packed...)
	operation := "close"
	if tx.Withdraw {
		operation = "withdraw"
	}
	return c.send(ctx, c.custodyAddress, data, operation)
}

// ReadBalances reads the current allocations and collateral token for channelId directly
// from the custody contract (C4's on-chain fallback, §4.4). readBalances(bytes32) returns
// (address[] destinations, uint256[] amounts, address token); the token address is
// reported both on every returned Allocation and as this method's second return value.
func (c *EthereumContractClient) ReadBalances(ctx context.Context, channelId string) ([]Allocation, string, error) {
	start := time.Now()
	var id [32]byte
	copy(id[:], common.FromHex(channelId))

	packed, err := c.abi.balancesArgs.Pack(id)
	if err != nil {
		return nil, "", fmt.Errorf("pack readBalances args: %w", err)
	}
	data := append(methodID("readBalances(bytes32)"), packed...)

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.custodyAddress,
		Data: data,
	}, nil)
	if err != nil {
		metrics.ChannelOnChainReads.WithLabelValues("error").Inc()
		return nil, "", newFallback(ReasonUnavailable, "on-chain balance read failed", err)
	}

	addressesType, _ := abi.NewType("address[]", "", nil)
	amountsType, _ := abi.NewType("uint256[]", "", nil)
	addressType, _ := abi.NewType("address", "", nil)
	outArgs := abi.Arguments{{Type: addressesType}, {Type: amountsType}, {Type: addressType}}

	values, err := outArgs.Unpack(result)
	if err != nil || len(values) != 3 {
		metrics.ChannelOnChainReads.WithLabelValues("error").Inc()
		return nil, "", fmt.Errorf("unpack readBalances result: %w", err)
	}

	destinations, _ := values[0].([]common.Address)
	amounts, _ := values[1].([]*big.Int)
	token, _ := values[2].(common.Address)
	tokenHex := token.Hex()

	allocations := make([]Allocation, 0, len(destinations))
	for i := range destinations {
		amt := big.NewInt(0)
		if i < len(amounts) {
			amt = amounts[i]
		}
		allocations = append(allocations, Allocation{
			Destination: destinations[i].Hex(),
			Token:       tokenHex,
			Amount:      amt.String(),
		})
	}

	metrics.ChannelOnChainReads.WithLabelValues("ok").Inc()
	metrics.ChannelTxDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())
	return allocations, tokenHex, nil
}

// WaitForReceipt polls for a mined transaction receipt, grounded on clientv4.go's
// waitForTransaction retry loop.
func (c *EthereumContractClient) WaitForReceipt(ctx context.Context, txHash string) (*ChainReceipt, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &ChainReceipt{
				TxHash:  txHash,
				Success: receipt.Status != types.ReceiptStatusFailed,
			}, nil
		}
		if !strings.Contains(err.Error(), "not found") {
			return nil, newFallback(ReasonTxFailed, "failed to fetch receipt", err)
		}

		select {
		case <-ctx.Done():
			return nil, newFallback(ReasonTimeout, "receipt not mined before deadline", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Healthy reports connectivity to the configured node RPC via a ChainID + BlockNumber
// round-trip.
func (c *EthereumContractClient) Healthy(ctx context.Context) error {
	if _, err := c.client.ChainID(ctx); err != nil {
		return fmt.Errorf("node rpc unhealthy: %w", err)
	}
	if _, err := c.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("node rpc unhealthy: %w", err)
	}
	return nil
}
