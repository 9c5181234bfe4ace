package describe

import "strings"

const promptInstruction = "Generate a detailed and accurate technical database column description. " +
	"Focus on the intended purpose and usage of the column in a business or analytics context. " +
	"Avoid generic statements and ensure the description is specific to the column's function.\n\n"

const promptExample = "Example:\n" +
	"Column Name: customer_id\n" +
	"Data Type: integer\n" +
	"Description: A unique identifier assigned to each customer, used to track customer interactions and transactions.\n\n"

// BuildPrompt renders the instruction, the worked example and the column to describe.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(promptInstruction)
	b.WriteString(promptExample)
	b.WriteString("Column Name: ")
	b.WriteString(req.Column)
	b.WriteString("\nData Type: ")
	b.WriteString(req.DataType)
	b.WriteString("\n")
	b.WriteString(req.Context)
	b.WriteString("\n\nDescription:")
	return b.String()
}
