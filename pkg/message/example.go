package message

// ExampleTypedDataJSON is the "Ether Mail" document used by wallet test dapps
const ExampleTypedDataJSON = `{
  "types": {
    "EIP712Domain": [
      {"name": "name", "type": "string"},
      {"name": "version", "type": "string"},
      {"name": "chainId", "type": "uint256"},
      {"name": "verifyingContract", "type": "address"}
    ],
    "Person": [
      {"name": "name", "type": "string"},
      {"name": "wallet", "type": "address"}
    ],
    "Mail": [
      {"name": "from", "type": "Person"},
      {"name": "to", "type": "Person"},
      {"name": "contents", "type": "string"}
    ]
  },
  "primaryType": "Mail",
  "domain": {
    "name": "Ether Mail",
    "version": "1",
    "chainId": 1,
    "verifyingContract": "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
  },
  "message": {
    "from": {
      "name": "Cow",
      "wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"
    },
    "to": {
      "name": "Bob",
      "wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"
    },
    "contents": "Hello, Bob!"
  }
}`

// ExamplePersonalMessage is the plain text message signed by the default run
const ExamplePersonalMessage = "My email is john@doe.com - 1537836206101"

// ExampleTypedData returns a fresh copy of the Ether Mail document
func ExampleTypedData() *Message {
	td, err := ParseTypedData(ExampleTypedDataJSON)
	if err != nil {
		panic(err)
	}
	return NewTypedDataMessage(td)
}
