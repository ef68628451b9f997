// Package batchtx composes multiple on-chain calls into a single atomic
// transaction executed by a batch router contract.
//
// The router accepts an ordered list of calls and executes them all-or-nothing.
// This library builds that list, asks the router how much native value the
// batch needs, simulates it, submits it, and decodes what came back.
//
// # Basic Usage
//
// Open a session against a node, build a batch, simulate, then submit:
//
//	backend, err := batchtx.Dial(ctx, "https://rpc.example.org")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session := batchtx.NewSession(backend, routerAddr,
//	    batchtx.WithWallet(auth),
//	    batchtx.WithChainID(chainID),
//	)
//
//	batch := session.NewBatch()
//	batch.MustAdd(batchtx.TokenTransfer{Token: usdc, To: alice, Amount: amount})
//	batch.MustAdd(batchtx.Wrap{WETH: weth, Amount: oneEther})
//
//	sim, err := batch.Simulate(ctx)
//	if err != nil {
//	    log.Fatal(err) // precondition failure, nothing was sent
//	}
//	if !sim.Success {
//	    log.Fatalf("would revert: %s", sim.RevertReason)
//	}
//
//	receipt, err := batch.ExecuteSync(ctx, batchtx.ExecuteOptions{})
//
// # Submission Protocols
//
// Three terminal operations submit a batch:
//
//   - Execute: sign, broadcast, then poll until the transaction is mined.
//     The transaction hash is known before confirmation.
//
//   - ExecuteSync: sign and submit through eth_sendRawTransactionSync, which
//     returns the receipt in the same response.
//
//   - ExecuteRealtime: the same as ExecuteSync over the chain's legacy
//     realtime_sendRawTransaction method.
//
// Simulate never returns a chain failure as an error: reverts are reported in
// the SimulationResult. The Execute family returns every chain failure as an
// error.
//
// # Decoding
//
// DecodeRevert turns revert payloads (Error(string), Panic(uint256) and the
// router's custom errors, including nested CallFailed) into readable text.
// DecodeBatchResults recovers one CallResult per call from raw return data,
// per-call events, or an optimistic fallback.
//
// # Sessions
//
// A Session produces fresh batches that share one backend and wallet, hands
// out nonces that stay ahead of the node's pending view, and aggregates
// independent reads into one Multicall3 round trip.
package batchtx
