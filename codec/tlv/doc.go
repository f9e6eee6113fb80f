// Package tlv implements the LwM2M TLV wire codec (spec §4.4 -- "the
// hardest subsystem"): encoding and decoding a tree.Node tree rooted at
// an Object to and from the OMA TLV byte layout.
//
// Wire contract (spec §9 "resource-instance sign-extension ambiguity"):
// this codec implements two's-complement signed integers exclusively.
// The legacy "sign bit in MSB of the first byte" pre-1.0 variant is not
// supported; every integer/time value is encoded at its narrowest
// two's-complement width in {1,2,4,8} bytes and sign-extended on decode
// (cmn/cos.GetIntWidth). This matches LwM2M 1.0.1+ and is the
// convention the round-trip tests in this package assert against.
/*
 * Copyright (c) 2024, Connectivity Foundry. All rights reserved.
 */
package tlv
