package batchtx

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Contract wraps an Ethereum contract so its methods can be turned into batch calls.
type Contract struct {
	address common.Address
	abi     abi.ABI
}

// NewContract creates a Contract wrapper.
func NewContract(address common.Address, contractABI abi.ABI) *Contract {
	return &Contract{
		address: address,
		abi:     contractABI,
	}
}

// Address returns the contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// ABI returns the contract ABI.
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// Invoke creates a Call for the named method with the given arguments.
// Arguments must already have the Go types go-ethereum's ABI packer expects
// (*big.Int for integers, common.Address for addresses, and so on).
func (c *Contract) Invoke(methodName string, args ...any) (Call, error) {
	return c.InvokeWithValue(nil, methodName, args...)
}

// InvokeWithValue is like Invoke but attaches native value to the call.
func (c *Contract) InvokeWithValue(value *uint256.Int, methodName string, args ...any) (Call, error) {
	if _, ok := c.abi.Methods[methodName]; !ok {
		return Call{}, &MethodNotFoundError{Contract: c.address, Method: methodName}
	}
	data, err := c.abi.Pack(methodName, args...)
	if err != nil {
		return Call{}, &EncodingError{Kind: KindRaw, Err: err}
	}
	return NewCall(c.address, value, data), nil
}

// MustInvoke is like Invoke but panics on error.
func (c *Contract) MustInvoke(methodName string, args ...any) Call {
	call, err := c.Invoke(methodName, args...)
	if err != nil {
		panic(err)
	}
	return call
}

// HasMethod returns true if the contract has a method with the given name.
func (c *Contract) HasMethod(methodName string) bool {
	_, ok := c.abi.Methods[methodName]
	return ok
}

// MethodNames returns all method names in the contract ABI.
func (c *Contract) MethodNames() []string {
	names := make([]string, 0, len(c.abi.Methods))
	for name := range c.abi.Methods {
		names = append(names, name)
	}
	return names
}

// ParseABI parses a JSON ABI string into an abi.ABI.
func ParseABI(abiJSON string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(abiJSON))
}

// MustParseABI is like ParseABI but panics on error.
func MustParseABI(abiJSON string) abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}
