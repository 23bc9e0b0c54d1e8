package bot

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const (
	successMessageColour int = 0x28bd00
	warnMessageColour    int = 0xbdb900
	errorMessageColour   int = 0xbd1b00
)

//Response represents the result of a command which can be both communicated over discord and written to the log.
type Response interface {
	DiscordResponse() *discordgo.MessageSend
	WriteToLog()
}

//ResponseSuccess will be returned when a command has been successfully completed
type ResponseSuccess struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//Optional extra lines shown under the title
	description string
	//A map containing fields which should be included in the embed
	data map[string]string
	//The time the success was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r ResponseSuccess) DiscordResponse() *discordgo.MessageSend {
	description := fmt.Sprintf("Completed %v command successfully!", r.command)
	if r.description != "" {
		description += "\n" + r.description
	}
	return responseMessage("Success! \\o/", description, successMessageColour, r.timestamp, r.data)
}

//WriteToLog dumps data on a discord command response to the log
func (r ResponseSuccess) WriteToLog() {
	logrus.Infof("%v Completed command %v successfully.", logLineLabel(r.timestamp), r.commandMsg)
}

//ResponsePartialSuccess will be returned when a command has executed but with issues
type ResponsePartialSuccess struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//A human-readable description of the issue
	description string
	//A map containing fields which should be included in the embed
	data map[string]string
	//The time the success was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r ResponsePartialSuccess) DiscordResponse() *discordgo.MessageSend {
	description := fmt.Sprintf("Completed %v command but with errors: \n%v", r.command, r.description)
	return responseMessage("Partial success...", description, warnMessageColour, r.timestamp, r.data)
}

//WriteToLog dumps data on a discord command response to the log
func (r ResponsePartialSuccess) WriteToLog() {
	logrus.Infof("%v Completed command %v but with errors: %v.", logLineLabel(r.timestamp), r.commandMsg, r.data)
}

//ResponseSyntaxError will be returned when there was an issue with the user's input
type ResponseSyntaxError struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//A human-readable description of the issue
	description string
	//A description of the correct syntax
	syntax string
	//The time the error was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r ResponseSyntaxError) DiscordResponse() *discordgo.MessageSend {
	description := fmt.Sprintf("Sorry, but there was a problem with the data you supplied for the %v command: \n%v", r.command, r.description)
	return responseMessage("Uh-oh, there was something wrong with that command", description, errorMessageColour, r.timestamp, map[string]string{
		"Your command":   r.commandMsg,
		"Correct syntax": r.syntax,
	})
}

//WriteToLog dumps data on a discord command response to the log
func (r ResponseSyntaxError) WriteToLog() {
	logrus.Infof("%v Syntax error in command %v: %v", logLineLabel(r.timestamp), r.commandMsg, r.description)
}

//ResponseInternalError will be returned when there was some kind of error within the bot or when communicating with
//APIs
type ResponseInternalError struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//A human-readable description of the issue
	description string
	//A map containing fields which should be included in the embed
	data map[string]string
	//The time the error was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r ResponseInternalError) DiscordResponse() *discordgo.MessageSend {
	description := fmt.Sprintf("Oops! I encountered an unexpected error whilst running your %v command. Please try again later or file a bug report.", r.command)
	dataWithDescription := map[string]string{"Error": r.description}
	for k, v := range r.data {
		dataWithDescription[k] = v
	}
	return responseMessage("Oops, something went wrong ;w;", description, errorMessageColour, r.timestamp, dataWithDescription)
}

//WriteToLog dumps data on a discord command response to the log
func (r ResponseInternalError) WriteToLog() {
	logrus.Warnf("%v Internal error in whilst executing command %v: %v | data: %v", logLineLabel(r.timestamp), r.commandMsg, r.description, r.data)
}

//ResponseNotAllowed will be returned when a user tried to run a command that they do not have the correct role for
type ResponseNotAllowed struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//A human-readable description of the issue
	description string
	//The time the error was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r ResponseNotAllowed) DiscordResponse() *discordgo.MessageSend {
	return responseMessage("That's illegal m8", "I'm sorry Dave, I can't let you do that...", errorMessageColour, r.timestamp, map[string]string{
		"Reason":  r.description,
		"Command": r.commandMsg,
	})
}

//WriteToLog dumps data on a discord command response to the log
func (r ResponseNotAllowed) WriteToLog() {
	logrus.Infof("%v Rejected command `%v` | description: %v", logLineLabel(r.timestamp), r.commandMsg, r.description)
}

//ResponseFeatureNotEnabled will be returned when a user tried to run a command which requires a disabled feature
type ResponseFeatureNotEnabled struct {
	//The base command name
	command string
	//The entire text contents of the message
	commandMsg string
	//The name of the feature which was disabled
	disabledFeature string
	//The time the error was logged at
	timestamp time.Time
}

//DiscordResponse builds a MessageSend object which can be sent back to whoever sent a command message.
func (r ResponseFeatureNotEnabled) DiscordResponse() *discordgo.MessageSend {
	description := fmt.Sprintf("Sorry, but the '%v' command requires a feature which is switched off in this server.", r.command)
	return responseMessage("Required feature is not activated", description, errorMessageColour, r.timestamp, map[string]string{
		"Required Feature(s)": r.disabledFeature,
	})
}

//WriteToLog dumps data on a discord command response to the log
func (r ResponseFeatureNotEnabled) WriteToLog() {
	logrus.Infof("%v Rejected command `%v` as required feature %v is switched off", logLineLabel(r.timestamp), r.commandMsg, r.disabledFeature)
}

/////////////////////
//Utility Functions//
/////////////////////

func logLineLabel(t time.Time) string {
	return fmt.Sprintf("#%v# | ", t.UnixNano())
}

//responseMessage wraps a single rich embed, stamped with the log ID of the response
func responseMessage(title, description string, colour int, timestamp time.Time, fields map[string]string) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Type:        discordgo.EmbedTypeRich,
		Description: description,
		Timestamp:   timestamp.Format(time.RFC3339),
		Color:       colour,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Log ID: %d", timestamp.UnixNano()),
		},
		Fields: stringMapToFields(fields),
	}
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
}

//Fields are sorted by name so responses render the same way every time
func stringMapToFields(fields map[string]string) []*discordgo.MessageEmbedField {
	names := make([]string, 0, len(fields))
	for fieldName := range fields {
		names = append(names, fieldName)
	}
	sort.Strings(names)
	var res []*discordgo.MessageEmbedField
	for _, fieldName := range names {
		field := discordgo.MessageEmbedField{
			Name:   fieldName,
			Value:  fields[fieldName],
			Inline: false,
		}
		res = append(res, &field)
	}
	return res
}
