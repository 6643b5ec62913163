// Package eth implements the chain.Client interfaces against a real
// OprfKeyRegistry contract via go-ethereum: confirmed-order event polling,
// view calls, and signed contribution transactions.
package eth

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// registryABI is the slice of the OprfKeyRegistry ABI the node consumes.
const registryABI = `[
  {"type":"event","name":"SecretGenRound1","inputs":[{"name":"oprfKeyId","type":"uint160"},{"name":"threshold","type":"uint256"}]},
  {"type":"event","name":"SecretGenRound2","inputs":[{"name":"oprfKeyId","type":"uint160"}]},
  {"type":"event","name":"SecretGenRound3","inputs":[{"name":"oprfKeyId","type":"uint160"}]},
  {"type":"event","name":"SecretGenFinalize","inputs":[{"name":"oprfKeyId","type":"uint160"},{"name":"epoch","type":"uint256"}]},
  {"type":"event","name":"ReshareRound1","inputs":[{"name":"oprfKeyId","type":"uint160"},{"name":"threshold","type":"uint256"}]},
  {"type":"event","name":"ReshareRound3","inputs":[{"name":"oprfKeyId","type":"uint160"},{"name":"lagrange","type":"uint256[]"}]},
  {"type":"event","name":"KeyDeletion","inputs":[{"name":"oprfKeyId","type":"uint160"}]},
  {"type":"event","name":"NotEnoughProducers","inputs":[{"name":"oprfKeyId","type":"uint160"}]},
  {"type":"event","name":"KeyGenAdminRegistered","inputs":[{"name":"admin","type":"address"}]},
  {"type":"event","name":"KeyGenAdminRevoked","inputs":[{"name":"admin","type":"address"}]},
  {"type":"function","name":"addRound1KeyGenContribution","stateMutability":"nonpayable","inputs":[{"name":"oprfKeyId","type":"uint160"},{"name":"contribution","type":"tuple","components":[
    {"name":"ephPubKey","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
    {"name":"commShare","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
    {"name":"commCoeffs","type":"uint256"}]}],"outputs":[]},
  {"type":"function","name":"addRound1ReshareContribution","stateMutability":"nonpayable","inputs":[{"name":"oprfKeyId","type":"uint160"},{"name":"contribution","type":"tuple","components":[
    {"name":"ephPubKey","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
    {"name":"commShare","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
    {"name":"commCoeffs","type":"uint256"}]}],"outputs":[]},
  {"type":"function","name":"addRound2Contribution","stateMutability":"nonpayable","inputs":[{"name":"oprfKeyId","type":"uint160"},{"name":"contribution","type":"tuple","components":[
    {"name":"compressedProof","type":"uint256[4]"},
    {"name":"ciphers","type":"tuple[]","components":[
      {"name":"nonce","type":"uint256"},
      {"name":"cipher","type":"uint256"},
      {"name":"commitment","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]}]}]}],"outputs":[]},
  {"type":"function","name":"addRound3Contribution","stateMutability":"nonpayable","inputs":[{"name":"oprfKeyId","type":"uint160"}],"outputs":[]},
  {"type":"function","name":"getOprfPublicKeyAndEpoch","stateMutability":"view","inputs":[{"name":"oprfKeyId","type":"uint160"}],"outputs":[
    {"name":"publicKey","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]},
    {"name":"epoch","type":"uint256"}]},
  {"type":"function","name":"getPartyIdForParticipant","stateMutability":"view","inputs":[{"name":"participant","type":"address"}],"outputs":[{"name":"partyId","type":"uint256"}]},
  {"type":"function","name":"loadPeerPublicKeysForProducers","stateMutability":"view","inputs":[{"name":"oprfKeyId","type":"uint160"}],"outputs":[{"name":"keys","type":"tuple[]","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]}]},
  {"type":"function","name":"loadPeerPublicKeysForConsumers","stateMutability":"view","inputs":[{"name":"oprfKeyId","type":"uint160"}],"outputs":[{"name":"keys","type":"tuple[]","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]}]},
  {"type":"function","name":"checkIsParticipantAndReturnRound2Ciphers","stateMutability":"view","inputs":[{"name":"oprfKeyId","type":"uint160"}],"outputs":[{"name":"ciphers","type":"tuple[]","components":[
    {"name":"nonce","type":"uint256"},
    {"name":"cipher","type":"uint256"},
    {"name":"commitment","type":"tuple","components":[{"name":"x","type":"uint256"},{"name":"y","type":"uint256"}]}]}]}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	a, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		panic("eth: parsing registry ABI: " + err.Error())
	}
	return a
}

// wire types matching the ABI tuple components.

type wirePoint struct {
	X *big.Int `abi:"x"`
	Y *big.Int `abi:"y"`
}

type wireRound1 struct {
	EphPubKey  wirePoint `abi:"ephPubKey"`
	CommShare  wirePoint `abi:"commShare"`
	CommCoeffs *big.Int  `abi:"commCoeffs"`
}

type wireCiphertext struct {
	Nonce      *big.Int  `abi:"nonce"`
	Cipher     *big.Int  `abi:"cipher"`
	Commitment wirePoint `abi:"commitment"`
}

type wireRound2 struct {
	CompressedProof [4]*big.Int      `abi:"compressedProof"`
	Ciphers         []wireCiphertext `abi:"ciphers"`
}

// revertSelectors maps the contract's custom error selectors to sentinel
// errors. keccak("Name()")[0:4].
var revertSelectors = map[[4]byte]string{
	selector("AlreadySubmitted()"): "AlreadySubmitted",
	selector("BadContribution()"):  "BadContribution",
	selector("DeletedId()"):        "DeletedId",
	selector("UnknownId()"):        "UnknownId",
	selector("WrongRound()"):       "WrongRound",
	selector("InvalidPoint()"):     "InvalidPoint",
	selector("NotAProducer()"):     "NotAProducer",
	selector("NotAParticipant()"):  "NotAParticipant",
	selector("OnlyAdmin()"):        "OnlyAdmin",
	selector("ProofInvalid()"):     "ProofInvalid",
}

func selector(sig string) [4]byte {
	var s [4]byte
	copy(s[:], crypto.Keccak256([]byte(sig))[:4])
	return s
}
