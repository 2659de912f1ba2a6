package bot

const (
	textWelcome = "👋 Hi! I will help you to download TikTok videos without watermark.\n\n" +
		"📹 Just send me a link to TikTok video and I will send the video back!\n\n" +
		"❓ Use /help for detailed instruction."
	// Placeholder is maximum file size in megabytes.
	textHelp = "📖 How to use the bot:\n\n" +
		"1️⃣ Find a video in TikTok\n" +
		"2️⃣ Press \"Share\" and copy the link\n" +
		"3️⃣ Send the link to me\n" +
		"4️⃣ Get the video without watermark!\n\n" +
		"⚠️ Limitations:\n" +
		"• Maximum video size: %d MB\n" +
		"• Only TikTok links are supported\n\n" +
		"💬 If something goes wrong, try another link."
	textStats          = "📊 Bot statistics:\n\n👥 Total users: %d"
	textNoAccess       = "❌ You don't have access to this command."
	textInvalidLink    = "❌ Please send a correct link to TikTok video.\n\nExample: https://www.tiktok.com/@username/video/1234567890"
	textDownloading    = "⏳ Downloading video, please wait..."
	textAlternative    = "⏳ Trying alternative method..."
	textDownloadFailed = "❌ Unfortunately, this video could not be downloaded. Try another link."
	textBusy           = "⏳ All workers are busy, try again later."
	textInternalError  = "Something went wrong. Try again."
)
