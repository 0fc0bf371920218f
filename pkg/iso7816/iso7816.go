/*
Package iso7816 implements the ISO/IEC 7816-4 command and response model shared by
both ends of the link: the emulated card parses command APDUs with ParseCommandAPDU,
the terminal side builds them and drives a card through Client.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

A received command exposes its ISO case, its extended length form, the CLA
coding (interindustry or proprietary) and, for chained commands, the command
that preceded it (see Chain).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - 0x6982: Security status not satisfied (access condition failed).
  - Other: Various error conditions.

# Usage Example: Reading a file from an emulated card

	client := iso7816.NewClient(processor) // any Transmitter
	cls, _ := iso7816.NewClass(0x00)

	read, _ := iso7816.ReadBinary(cls, iso7816.BinaryReference{SFI: 0x1C}, 0)
	trace, err := client.Send(read)
	if err != nil {
	    log.Fatal(err)
	}

	// Full report: headers, statuses and a decoded payload.
	fmt.Println(trace.Describe())
*/
package iso7816
